package audit

import (
	"context"
	"log/slog"

	"sentinel-engine/internal/logging"
	"sentinel-engine/internal/schema"
)

// LogSink writes audit records to structured logs. Sensitive metadata
// values are masked before they reach the log output.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates an audit sink backed by the given logger. A nil
// logger uses the default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// LogSecurityEvent records a security event.
func (s *LogSink) LogSecurityEvent(ctx context.Context, event *schema.SecurityEvent) error {
	s.logger.InfoContext(ctx, "security event",
		"type", event.Type,
		"severity", event.Severity,
		"user_id", event.UserID,
		"ip_address", event.IPAddress,
		"correlation_id", event.CorrelationID,
		"timestamp", event.Timestamp,
		"metadata", logging.MaskMetadata(event.Metadata))
	return nil
}

// CreateAuditTrail records an audit trail entry.
func (s *LogSink) CreateAuditTrail(ctx context.Context, entry *TrailEntry) error {
	s.logger.InfoContext(ctx, "audit trail",
		"entry_id", entry.ID,
		"action", entry.Action,
		"user_id", entry.UserID,
		"timestamp", entry.Timestamp,
		"details", logging.MaskMetadata(entry.Details))
	return nil
}
