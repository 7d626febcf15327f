// Package audit defines the external audit-sink contract consumed by the
// engine, plus the bundled sink implementations. Sink failures are logged
// and never retried; event processing continues regardless.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sentinel-engine/internal/schema"
)

// TrailEntry is one durable audit record.
type TrailEntry struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink receives security events and audit trail entries. Implementations
// live outside the engine's failure domain: errors are reported back but
// must not be treated as fatal by callers.
type Sink interface {
	LogSecurityEvent(ctx context.Context, event *schema.SecurityEvent) error
	CreateAuditTrail(ctx context.Context, entry *TrailEntry) error
}

// NewTrailEntry creates a trail entry with a fresh id.
func NewTrailEntry(action, userID string, at time.Time, details map[string]any) *TrailEntry {
	return &TrailEntry{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: at,
		Details:   details,
	}
}
