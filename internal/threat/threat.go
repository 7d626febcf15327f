// Package threat defines detected findings and their lifecycle.
package threat

import (
	"time"

	"github.com/google/uuid"

	"sentinel-engine/internal/schema"
)

// Type identifies the kind of detected threat.
type Type string

const (
	TypeBruteForceAttack       Type = "brute_force_attack"
	TypeCredentialStuffing     Type = "credential_stuffing"
	TypeSuspiciousLoginPattern Type = "suspicious_login_pattern"
	TypeDeviceAnomaly          Type = "device_anomaly"
	TypeLocationAnomaly        Type = "location_anomaly"
	TypeMFABypassAttempt       Type = "mfa_bypass_attempt"
)

// Status represents the lifecycle state of a threat. Transitions are
// forward only: active threats may move to investigating, mitigated, or
// false_positive; nothing ever reopens.
type Status string

const (
	StatusActive        Status = "active"
	StatusInvestigating Status = "investigating"
	StatusMitigated     Status = "mitigated"
	StatusFalsePositive Status = "false_positive"
)

// Indicator is one piece of evidence supporting a threat.
type Indicator struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	Confidence int    `json:"confidence"` // 0-100
	Source     string `json:"source"`
}

// Threat is a structured finding produced by a detector. It references the
// triggering event's user/IP but does not own the event. Threats are never
// auto-deleted; mitigated threats remain queryable.
type Threat struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	Severity    schema.Severity `json:"severity"`
	UserID      string          `json:"user_id,omitempty"`
	IPAddress   string          `json:"ip_address,omitempty"`
	Description string          `json:"description"`
	Indicators  []Indicator     `json:"indicators"`
	DetectedAt  time.Time       `json:"detected_at"`
	Status      Status          `json:"status"`
	MitigatedAt *time.Time      `json:"mitigated_at,omitempty"`
	MitigatedBy string          `json:"mitigated_by,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// New creates an active threat with a fresh id.
func New(t Type, severity schema.Severity, description string) *Threat {
	return &Threat{
		ID:          uuid.New(),
		Type:        t,
		Severity:    severity,
		Description: description,
		Status:      StatusActive,
		Metadata:    make(map[string]any),
	}
}
