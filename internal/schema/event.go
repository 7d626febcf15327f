// Package schema defines the canonical security-event model for the engine.
// All events entering the pipeline are normalized to this structure.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of security event.
type EventType string

const (
	EventLoginFailure         EventType = "login_failure"
	EventLoginSuccess         EventType = "login_success"
	EventLoginSuspicious      EventType = "login_suspicious"
	EventMFABypassAttempt     EventType = "mfa_bypass_attempt"
	EventMFAEnabled           EventType = "mfa_enabled"
	EventDeviceChange         EventType = "device_change"
	EventLocationChange       EventType = "location_change"
	EventUnauthorizedAccess   EventType = "unauthorized_access"
	EventSessionHijackAttempt EventType = "session_hijack_attempt"
	EventPasswordChange       EventType = "password_change"
	EventAccountLocked        EventType = "account_locked"
	EventDataExportRequest    EventType = "data_export_request"
	EventDataDeletionRequest  EventType = "data_deletion_request"
	EventConsentGranted       EventType = "consent_granted"
	EventConsentRevoked       EventType = "consent_revoked"
)

// IsValid checks if the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventLoginFailure, EventLoginSuccess, EventLoginSuspicious,
		EventMFABypassAttempt, EventMFAEnabled, EventDeviceChange,
		EventLocationChange, EventUnauthorizedAccess, EventSessionHijackAttempt,
		EventPasswordChange, EventAccountLocked,
		EventDataExportRequest, EventDataDeletionRequest,
		EventConsentGranted, EventConsentRevoked:
		return true
	}
	return false
}

// GDPRRelevant reports whether the event must be forwarded to the audit
// trail for data-protection record keeping.
func (t EventType) GDPRRelevant() bool {
	switch t {
	case EventDataExportRequest, EventDataDeletionRequest,
		EventConsentGranted, EventConsentRevoked:
		return true
	}
	return false
}

// Severity classifies how serious an event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SecurityEvent is an immutable input record. It is created by the caller,
// appended to the event buffer, and eventually evicted by age; it is never
// mutated after ingestion.
type SecurityEvent struct {
	Type     EventType `json:"type" validate:"required,event_type"`
	Severity Severity  `json:"severity" validate:"required,oneof=low medium high critical"`

	UserID            string `json:"user_id,omitempty" validate:"max=256"`
	IPAddress         string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty" validate:"max=512"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp defaults to ingestion time; CorrelationID is generated when
	// the caller does not supply one.
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ApplyDefaults fills the timestamp and correlation id when absent.
// Must be called before the event is appended to the buffer.
func (e *SecurityEvent) ApplyDefaults(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}
}

// MetadataString returns the string value of a metadata key, or "" when the
// key is absent or not a string.
func (e *SecurityEvent) MetadataString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	if v, ok := e.Metadata[key].(string); ok {
		return v
	}
	return ""
}
