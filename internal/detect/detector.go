// Package detect implements the heuristic threat detectors.
//
// Each detector is a pure function of the incoming event and a view of the
// event buffer. Detectors are isolated: a panic inside one detector is
// recovered and logged, and must never prevent siblings from running.
package detect

import (
	"log/slog"
	"time"

	"sentinel-engine/internal/buffer"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

// Detector evaluates one heuristic against the incoming event and the
// buffered history, producing zero or more threats.
type Detector interface {
	Name() string
	// Relevant reports whether the detector should run for this event type.
	Relevant(t schema.EventType) bool
	Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat
}

// Set is a pluggable registry of detectors.
type Set struct {
	detectors []Detector
}

// NewSet creates a detector set from the given detectors.
func NewSet(detectors ...Detector) *Set {
	return &Set{detectors: detectors}
}

// DefaultSet returns the standard detector set with default thresholds.
func DefaultSet(cfg Config) *Set {
	return NewSet(
		NewBruteForceDetector(cfg),
		NewCredentialStuffingDetector(cfg),
		NewSuspiciousLoginDetector(cfg),
		NewMFABypassDetector(),
		NewDeviceAnomalyDetector(cfg),
		NewLocationAnomalyDetector(),
	)
}

// Add registers an additional detector.
func (s *Set) Add(d Detector) {
	s.detectors = append(s.detectors, d)
}

// Evaluate runs every relevant detector against the event and collects
// the resulting threats. A failing detector contributes nothing.
func (s *Set) Evaluate(event *schema.SecurityEvent, view buffer.View) []*threat.Threat {
	var found []*threat.Threat
	for _, d := range s.detectors {
		found = append(found, s.runOne(d, event, view)...)
	}
	return found
}

func (s *Set) runOne(d Detector, event *schema.SecurityEvent, view buffer.View) (out []*threat.Threat) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector failed",
				"detector", d.Name(),
				"event_type", event.Type,
				"correlation_id", event.CorrelationID,
				"panic", r)
			out = nil
		}
	}()

	if !d.Relevant(event.Type) {
		return nil
	}
	return d.Evaluate(event, view)
}

// Config holds the detector windows and thresholds.
type Config struct {
	BruteForceWindow    time.Duration `yaml:"brute_force_window"`
	BruteForceThreshold int           `yaml:"brute_force_threshold"`
	// Distinct users within the brute-force selection that escalate to
	// credential stuffing.
	BruteForceUserSpread int `yaml:"brute_force_user_spread"`

	StuffingWindow         time.Duration `yaml:"stuffing_window"`
	StuffingEmailThreshold int           `yaml:"stuffing_email_threshold"`
	StuffingEventThreshold int           `yaml:"stuffing_event_threshold"`

	LoginPatternWindow      time.Duration `yaml:"login_pattern_window"`
	LoginPatternIPThreshold int           `yaml:"login_pattern_ip_threshold"`

	KnownDeviceWindow time.Duration `yaml:"known_device_window"`
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		BruteForceWindow:     15 * time.Minute,
		BruteForceThreshold:  5,
		BruteForceUserSpread: 3,

		StuffingWindow:         10 * time.Minute,
		StuffingEmailThreshold: 5,
		StuffingEventThreshold: 10,

		LoginPatternWindow:      60 * time.Minute,
		LoginPatternIPThreshold: 2,

		KnownDeviceWindow: 30 * 24 * time.Hour,
	}
}

// inWindow selects events with timestamps in (asOf-window, asOf].
func inWindow(e *schema.SecurityEvent, asOf time.Time, window time.Duration) bool {
	return !e.Timestamp.After(asOf) && e.Timestamp.After(asOf.Add(-window))
}
