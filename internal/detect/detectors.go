package detect

import (
	"fmt"

	"sentinel-engine/internal/buffer"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

// BruteForceDetector detects repeated login failures from one IP, and
// escalates to credential stuffing when the failures spread across several
// user accounts. It can emit two threats from one triggering event.
type BruteForceDetector struct {
	cfg Config
}

// NewBruteForceDetector creates a brute-force detector.
func NewBruteForceDetector(cfg Config) *BruteForceDetector {
	return &BruteForceDetector{cfg: cfg}
}

func (d *BruteForceDetector) Name() string { return "brute_force" }

func (d *BruteForceDetector) Relevant(t schema.EventType) bool {
	return t == schema.EventLoginFailure
}

func (d *BruteForceDetector) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	if event.IPAddress == "" {
		return nil
	}

	asOf := event.Timestamp
	failures := view.Snapshot(func(e *schema.SecurityEvent) bool {
		return e.Type == schema.EventLoginFailure &&
			e.IPAddress == event.IPAddress &&
			inWindow(e, asOf, d.cfg.BruteForceWindow)
	})

	if len(failures) < d.cfg.BruteForceThreshold {
		return nil
	}

	bf := threat.New(threat.TypeBruteForceAttack, schema.SeverityHigh,
		fmt.Sprintf("%d failed login attempts from %s within %s",
			len(failures), event.IPAddress, d.cfg.BruteForceWindow))
	bf.IPAddress = event.IPAddress
	bf.UserID = event.UserID
	bf.DetectedAt = asOf
	bf.Indicators = []threat.Indicator{
		{Type: "ip_address", Value: event.IPAddress, Confidence: 90, Source: d.Name()},
		{Type: "failure_count", Value: fmt.Sprintf("%d", len(failures)), Confidence: 95, Source: d.Name()},
	}

	found := []*threat.Threat{bf}

	// Same selection, grouped by user: many targeted accounts from one IP
	// means the failures are a stuffing run, not a single-account attack.
	users := make(map[string]struct{})
	for _, e := range failures {
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
	}
	if len(users) >= d.cfg.BruteForceUserSpread {
		cs := threat.New(threat.TypeCredentialStuffing, schema.SeverityCritical,
			fmt.Sprintf("login failures from %s spread across %d accounts",
				event.IPAddress, len(users)))
		cs.IPAddress = event.IPAddress
		cs.DetectedAt = asOf
		cs.Indicators = []threat.Indicator{
			{Type: "ip_address", Value: event.IPAddress, Confidence: 90, Source: d.Name()},
			{Type: "account_spread", Value: fmt.Sprintf("%d", len(users)), Confidence: 85, Source: d.Name()},
		}
		found = append(found, cs)
	}

	return found
}

// CredentialStuffingDetector detects high-velocity credential testing by
// distinct email, independently of the brute-force escalation path. The two
// paths use different windows and grouping keys on purpose.
type CredentialStuffingDetector struct {
	cfg Config
}

// NewCredentialStuffingDetector creates a standalone stuffing detector.
func NewCredentialStuffingDetector(cfg Config) *CredentialStuffingDetector {
	return &CredentialStuffingDetector{cfg: cfg}
}

func (d *CredentialStuffingDetector) Name() string { return "credential_stuffing" }

func (d *CredentialStuffingDetector) Relevant(t schema.EventType) bool {
	return t == schema.EventLoginFailure || t == schema.EventLoginSuspicious
}

func (d *CredentialStuffingDetector) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	if event.IPAddress == "" {
		return nil
	}

	asOf := event.Timestamp
	selected := view.Snapshot(func(e *schema.SecurityEvent) bool {
		return (e.Type == schema.EventLoginFailure || e.Type == schema.EventLoginSuspicious) &&
			e.IPAddress == event.IPAddress &&
			inWindow(e, asOf, d.cfg.StuffingWindow)
	})

	emails := make(map[string]struct{})
	for _, e := range selected {
		if email := e.MetadataString("email"); email != "" {
			emails[email] = struct{}{}
		}
	}

	if len(emails) < d.cfg.StuffingEmailThreshold || len(selected) < d.cfg.StuffingEventThreshold {
		return nil
	}

	t := threat.New(threat.TypeCredentialStuffing, schema.SeverityCritical,
		fmt.Sprintf("%d login attempts against %d distinct accounts from %s within %s",
			len(selected), len(emails), event.IPAddress, d.cfg.StuffingWindow))
	t.IPAddress = event.IPAddress
	t.DetectedAt = asOf
	t.Indicators = []threat.Indicator{
		{Type: "velocity", Value: fmt.Sprintf("%d", len(selected)), Confidence: 85, Source: d.Name()},
		{Type: "account_spread", Value: fmt.Sprintf("%d", len(emails)), Confidence: 90, Source: d.Name()},
	}
	return []*threat.Threat{t}
}

// SuspiciousLoginDetector flags successful logins for one user arriving
// from multiple IP addresses in a short window. IP diversity is the only
// distance proxy used; there is no real geolocation.
type SuspiciousLoginDetector struct {
	cfg Config
}

// NewSuspiciousLoginDetector creates a suspicious-login-pattern detector.
func NewSuspiciousLoginDetector(cfg Config) *SuspiciousLoginDetector {
	return &SuspiciousLoginDetector{cfg: cfg}
}

func (d *SuspiciousLoginDetector) Name() string { return "suspicious_login" }

func (d *SuspiciousLoginDetector) Relevant(t schema.EventType) bool {
	return t == schema.EventLoginSuccess || t == schema.EventLoginSuspicious
}

func (d *SuspiciousLoginDetector) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	if event.UserID == "" {
		return nil
	}

	asOf := event.Timestamp
	logins := view.Snapshot(func(e *schema.SecurityEvent) bool {
		return e.Type == schema.EventLoginSuccess &&
			e.UserID == event.UserID &&
			inWindow(e, asOf, d.cfg.LoginPatternWindow)
	})

	ips := make(map[string]struct{})
	for _, e := range logins {
		if e.IPAddress != "" {
			ips[e.IPAddress] = struct{}{}
		}
	}
	if len(ips) < d.cfg.LoginPatternIPThreshold {
		return nil
	}

	t := threat.New(threat.TypeSuspiciousLoginPattern, schema.SeverityMedium,
		fmt.Sprintf("user %s logged in from %d distinct IPs within %s",
			event.UserID, len(ips), d.cfg.LoginPatternWindow))
	t.UserID = event.UserID
	t.IPAddress = event.IPAddress
	t.DetectedAt = asOf
	t.Indicators = []threat.Indicator{
		{Type: "ip_diversity", Value: fmt.Sprintf("%d", len(ips)), Confidence: 70, Source: d.Name()},
	}
	return []*threat.Threat{t}
}

// MFABypassDetector emits a critical threat for every MFA bypass attempt,
// unconditionally.
type MFABypassDetector struct{}

// NewMFABypassDetector creates an MFA bypass detector.
func NewMFABypassDetector() *MFABypassDetector { return &MFABypassDetector{} }

func (d *MFABypassDetector) Name() string { return "mfa_bypass" }

func (d *MFABypassDetector) Relevant(t schema.EventType) bool {
	return t == schema.EventMFABypassAttempt
}

func (d *MFABypassDetector) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	t := threat.New(threat.TypeMFABypassAttempt, schema.SeverityCritical,
		fmt.Sprintf("MFA bypass attempted for user %s", event.UserID))
	t.UserID = event.UserID
	t.IPAddress = event.IPAddress
	t.DetectedAt = event.Timestamp
	t.Indicators = []threat.Indicator{
		{Type: "mfa_bypass", Value: string(event.Type), Confidence: 100, Source: d.Name()},
	}
	return []*threat.Threat{t}
}

// DeviceAnomalyDetector flags device changes introducing a fingerprint the
// user has not been seen with. Once a fingerprint appears in the buffer it
// is known for the configured window.
type DeviceAnomalyDetector struct {
	cfg Config
}

// NewDeviceAnomalyDetector creates a device anomaly detector.
func NewDeviceAnomalyDetector(cfg Config) *DeviceAnomalyDetector {
	return &DeviceAnomalyDetector{cfg: cfg}
}

func (d *DeviceAnomalyDetector) Name() string { return "device_anomaly" }

func (d *DeviceAnomalyDetector) Relevant(t schema.EventType) bool {
	return t == schema.EventDeviceChange
}

func (d *DeviceAnomalyDetector) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	if event.DeviceFingerprint == "" || event.UserID == "" {
		return nil
	}

	asOf := event.Timestamp
	// The incoming event is already buffered; exclude it so that a
	// first-seen fingerprint does not count as already known.
	history := view.Snapshot(func(e *schema.SecurityEvent) bool {
		return e != event &&
			e.UserID == event.UserID &&
			e.DeviceFingerprint != "" &&
			inWindow(e, asOf, d.cfg.KnownDeviceWindow)
	})

	for _, e := range history {
		if e.DeviceFingerprint == event.DeviceFingerprint {
			return nil
		}
	}

	t := threat.New(threat.TypeDeviceAnomaly, schema.SeverityMedium,
		fmt.Sprintf("unrecognized device fingerprint for user %s", event.UserID))
	t.UserID = event.UserID
	t.IPAddress = event.IPAddress
	t.DetectedAt = asOf
	t.Indicators = []threat.Indicator{
		{Type: "device_fingerprint", Value: event.DeviceFingerprint, Confidence: 80, Source: d.Name()},
	}
	return []*threat.Threat{t}
}

// LocationAnomalyDetector is a stub heuristic: every location change emits a
// low-severity threat keyed on the current IP address. Real geodesic
// distance would require an external IP-intelligence source.
type LocationAnomalyDetector struct{}

// NewLocationAnomalyDetector creates a location anomaly detector.
func NewLocationAnomalyDetector() *LocationAnomalyDetector {
	return &LocationAnomalyDetector{}
}

func (d *LocationAnomalyDetector) Name() string { return "location_anomaly" }

func (d *LocationAnomalyDetector) Relevant(t schema.EventType) bool {
	return t == schema.EventLocationChange
}

func (d *LocationAnomalyDetector) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	t := threat.New(threat.TypeLocationAnomaly, schema.SeverityLow,
		fmt.Sprintf("location change observed for user %s from %s", event.UserID, event.IPAddress))
	t.UserID = event.UserID
	t.IPAddress = event.IPAddress
	t.DetectedAt = event.Timestamp
	t.Indicators = []threat.Indicator{
		{Type: "ip_address", Value: event.IPAddress, Confidence: 60, Source: d.Name()},
	}
	return []*threat.Threat{t}
}
