// Package engine wires the event buffer, detectors, threat registry, alert
// rules, and metrics into the event-processing pipeline.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel-engine/internal/alerting"
	"sentinel-engine/internal/audit"
	"sentinel-engine/internal/buffer"
	"sentinel-engine/internal/detect"
	"sentinel-engine/internal/metrics"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

// Config holds engine-level settings.
type Config struct {
	BufferRetention  time.Duration
	EvictionInterval time.Duration
	RecountInterval  time.Duration
	Detection        detect.Config
}

// DefaultConfig returns default engine settings.
func DefaultConfig() Config {
	return Config{
		BufferRetention:  24 * time.Hour,
		EvictionInterval: 5 * time.Minute,
		RecountInterval:  time.Minute,
		Detection:        detect.DefaultConfig(),
	}
}

// Engine is the security-event correlation and threat-detection engine.
// ProcessSecurityEvent is the sole ingestion point; the maintenance tasks
// acquire the same serialization as event processing.
type Engine struct {
	config Config

	validator *schema.Validator
	buf       *buffer.Buffer
	detectors *detect.Set
	registry  *threat.Registry
	responder *threat.Responder
	rules     *alerting.Engine
	agg       *metrics.Aggregator
	sink      audit.Sink

	// mu serializes the event pipeline against maintenance. The leaf
	// components have their own locks for their query surfaces; this one
	// keeps the pipeline's multi-component mutations single-writer.
	mu  sync.Mutex
	now func() time.Time

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the engine clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.registry.SetClock(now)
		e.rules.SetClock(now)
	}
}

// WithCooldownStore wires a shared cooldown store into the rule engine.
func WithCooldownStore(store alerting.CooldownStore) Option {
	return func(e *Engine) {
		e.rules.SetCooldownStore(store)
	}
}

// WithDetectorSet replaces the default detector set.
func WithDetectorSet(set *detect.Set) Option {
	return func(e *Engine) {
		e.detectors = set
	}
}

// New creates an engine with the default rules seeded. The audit sink is
// required; use audit.NewLogSink for a local deployment.
func New(config Config, sink audit.Sink, opts ...Option) (*Engine, error) {
	if sink == nil {
		return nil, fmt.Errorf("audit sink is required")
	}

	e := &Engine{
		config:    config,
		validator: schema.NewValidator(),
		buf:       buffer.New(),
		detectors: detect.DefaultSet(config.Detection),
		registry:  threat.NewRegistry(),
		responder: threat.NewResponder(),
		rules:     alerting.NewEngine(),
		agg:       metrics.NewAggregator(),
		sink:      sink,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, rule := range alerting.DefaultRules() {
		if err := e.rules.AddRule(rule); err != nil {
			return nil, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
		}
	}

	return e, nil
}

// ProcessSecurityEvent runs the full pipeline for one event: buffer append,
// metrics update, audit logging, detection, threat storage and automated
// response, alert-rule evaluation, and GDPR forwarding. Per-stage failures
// are contained; only admission validation can reject the event.
func (e *Engine) ProcessSecurityEvent(ctx context.Context, event *schema.SecurityEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}

	event.ApplyDefaults(e.now())
	if err := e.validator.Validate(event); err != nil {
		return fmt.Errorf("event rejected: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.Append(event)
	e.agg.RecordEvent(event, e.now())

	// The audit call is the pipeline's only suspension point. Failures
	// are logged and processing continues.
	if err := e.sink.LogSecurityEvent(ctx, event); err != nil {
		slog.Error("audit sink failed for event",
			"correlation_id", event.CorrelationID, "error", err)
	}

	for _, found := range e.detectors.Evaluate(event, e.buf) {
		e.handleThreat(ctx, found)
	}

	e.rules.EvaluateEvent(ctx, event)

	if event.Type.GDPRRelevant() {
		e.forwardGDPREvent(ctx, event)
	}

	return nil
}

// handleThreat stores a detected threat, updates counters, dispatches the
// automated response, and forwards a summarized finding to the audit sink.
// Audit failures never roll back storage.
func (e *Engine) handleThreat(ctx context.Context, t *threat.Threat) {
	e.registry.Store(t)
	e.agg.RecordThreat(t)
	rec := e.responder.Dispatch(t)

	entry := audit.NewTrailEntry("threat_detected", t.UserID, t.DetectedAt, map[string]any{
		"threat_id":          t.ID.String(),
		"threat_type":        string(t.Type),
		"severity":           string(t.Severity),
		"ip_address":         t.IPAddress,
		"description":        t.Description,
		"recommended_action": string(rec.Action),
	})
	if err := e.sink.CreateAuditTrail(ctx, entry); err != nil {
		slog.Error("audit sink failed for threat",
			"threat_id", t.ID, "error", err)
	}
}

// forwardGDPREvent records data-protection relevant events in the audit
// trail for external compliance workflows.
func (e *Engine) forwardGDPREvent(ctx context.Context, event *schema.SecurityEvent) {
	entry := audit.NewTrailEntry("gdpr_event", event.UserID, event.Timestamp, map[string]any{
		"event_type":     string(event.Type),
		"correlation_id": event.CorrelationID,
	})
	if err := e.sink.CreateAuditTrail(ctx, entry); err != nil {
		slog.Error("audit sink failed for gdpr event",
			"correlation_id", event.CorrelationID, "error", err)
	}
}

// Start launches the two maintenance tasks: buffer eviction and the
// active-threat recount. Both stop on context cancellation or Stop.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.evictionLoop(ctx)
	go e.recountLoop(ctx)

	slog.Info("engine started",
		"buffer_retention", e.config.BufferRetention,
		"eviction_interval", e.config.EvictionInterval,
		"recount_interval", e.config.RecountInterval)
}

// Stop cancels the maintenance tasks and waits for them to exit.
func (e *Engine) Stop() {
	e.stopped.Do(func() { close(e.stopCh) })
	e.wg.Wait()
	slog.Info("engine stopped")
}

func (e *Engine) evictionLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.EvictExpired()
		}
	}
}

func (e *Engine) recountLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RecountInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.RecountActiveThreats()
		}
	}
}

// EvictExpired drops buffered events older than the retention window.
func (e *Engine) EvictExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-e.config.BufferRetention)
	removed := e.buf.EvictBefore(cutoff)
	if removed > 0 {
		slog.Debug("evicted expired events", "removed", removed, "cutoff", cutoff)
	}
	return removed
}

// RecountActiveThreats recomputes the active-threat gauge from the registry.
func (e *Engine) RecountActiveThreats() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.registry.ActiveCount()
	e.agg.SetActiveThreats(n)
	return n
}

// GetSecurityMetrics returns a snapshot of the derived metrics.
func (e *Engine) GetSecurityMetrics() metrics.SecurityMetrics {
	return e.agg.Snapshot()
}

// GetActiveThreats returns all threats with status active.
func (e *Engine) GetActiveThreats() []*threat.Threat {
	return e.registry.Active()
}

// GetThreat retrieves a threat by id.
func (e *Engine) GetThreat(id uuid.UUID) (*threat.Threat, bool) {
	return e.registry.Get(id)
}

// MitigateThreat marks an active threat as mitigated. Returns false when
// the id is unknown.
func (e *Engine) MitigateThreat(id uuid.UUID, mitigatedBy, reason string) bool {
	return e.registry.Mitigate(id, mitigatedBy, reason)
}

// AddAlertRule adds an alert rule.
func (e *Engine) AddAlertRule(rule *alerting.Rule) error {
	return e.rules.AddRule(rule)
}

// RemoveAlertRule removes an alert rule by id.
func (e *Engine) RemoveAlertRule(ruleID string) bool {
	return e.rules.RemoveRule(ruleID)
}

// GetAlertRules returns all alert rules ordered by id.
func (e *Engine) GetAlertRules() []*alerting.Rule {
	return e.rules.Rules()
}

// RegisterAlertExecutor registers or replaces an alert action executor.
func (e *Engine) RegisterAlertExecutor(exec alerting.Executor) {
	e.rules.RegisterExecutor(exec)
}

// Stats returns statistics from all components.
func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"buffer":   e.buf.Stats(),
		"registry": e.registry.Stats(),
		"rules":    e.rules.Stats(),
	}
}
