package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sentinel-engine/internal/audit"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

// memorySink records everything the engine forwards to the audit layer.
type memorySink struct {
	mu      sync.Mutex
	events  []*schema.SecurityEvent
	trails  []*audit.TrailEntry
	failAll bool
}

func (s *memorySink) LogSecurityEvent(ctx context.Context, event *schema.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) CreateAuditTrail(ctx context.Context, entry *audit.TrailEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("sink unavailable")
	}
	s.trails = append(s.trails, entry)
	return nil
}

func (s *memorySink) trailsByAction(action string) []*audit.TrailEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.TrailEntry
	for _, e := range s.trails {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T, sink audit.Sink, clock func() time.Time) *Engine {
	t.Helper()
	e, err := New(DefaultConfig(), sink, WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func loginFailure(ip, userID string, at time.Time) *schema.SecurityEvent {
	return &schema.SecurityEvent{
		Type:      schema.EventLoginFailure,
		Severity:  schema.SeverityMedium,
		UserID:    userID,
		IPAddress: ip,
		Timestamp: at,
	}
}

func TestEngine_RequiresSink(t *testing.T) {
	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

func TestEngine_SeedsDefaultRules(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)
	if got := len(e.GetAlertRules()); got != 3 {
		t.Errorf("seeded rules = %d, want 3", got)
	}
}

func TestEngine_RejectsInvalidEvent(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)
	ctx := context.Background()

	if err := e.ProcessSecurityEvent(ctx, nil); err == nil {
		t.Error("nil event should be rejected")
	}

	err := e.ProcessSecurityEvent(ctx, &schema.SecurityEvent{
		Type:     "not_a_type",
		Severity: schema.SeverityLow,
	})
	if err == nil {
		t.Error("unknown event type should be rejected")
	}

	// Rejected events contribute nothing downstream.
	if got := e.GetSecurityMetrics().TotalEvents; got != 0 {
		t.Errorf("total events after rejects = %d, want 0", got)
	}
}

func TestEngine_AppliesDefaults(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)

	ev := &schema.SecurityEvent{
		Type:     schema.EventLoginSuccess,
		Severity: schema.SeverityLow,
		UserID:   "alice",
	}
	if err := e.ProcessSecurityEvent(context.Background(), ev); err != nil {
		t.Fatalf("ProcessSecurityEvent: %v", err)
	}

	if ev.Timestamp.IsZero() {
		t.Error("timestamp was not defaulted")
	}
	if ev.CorrelationID == "" {
		t.Error("correlation id was not generated")
	}
}

func TestEngine_BruteForceEndToEnd(t *testing.T) {
	sink := &memorySink{}
	e := newTestEngine(t, sink, time.Now)
	ctx := context.Background()

	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 5; i++ {
		ev := loginFailure("10.0.0.1", "alice", base.Add(time.Duration(i)*time.Minute))
		if err := e.ProcessSecurityEvent(ctx, ev); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	active := e.GetActiveThreats()
	if len(active) != 1 {
		t.Fatalf("active threats = %d, want 1", len(active))
	}
	th := active[0]
	if th.Type != threat.TypeBruteForceAttack {
		t.Errorf("type = %s, want %s", th.Type, threat.TypeBruteForceAttack)
	}
	if th.IPAddress != "10.0.0.1" {
		t.Errorf("ip = %s, want 10.0.0.1", th.IPAddress)
	}

	// The finding was forwarded to the audit trail.
	trails := sink.trailsByAction("threat_detected")
	if len(trails) != 1 {
		t.Fatalf("threat_detected trail entries = %d, want 1", len(trails))
	}
	if trails[0].Details["threat_type"] != "brute_force_attack" {
		t.Errorf("trail details = %v", trails[0].Details)
	}

	// Metrics tracked both the events and the threat.
	m := e.GetSecurityMetrics()
	if m.TotalEvents != 5 {
		t.Errorf("total events = %d, want 5", m.TotalEvents)
	}
	if m.ThreatCount != 1 {
		t.Errorf("threat count = %d, want 1", m.ThreatCount)
	}
}

func TestEngine_ActiveGaugeCurrentAfterDetection(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)

	if err := e.ProcessSecurityEvent(context.Background(), &schema.SecurityEvent{
		Type:      schema.EventMFABypassAttempt,
		Severity:  schema.SeverityCritical,
		UserID:    "alice",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("ProcessSecurityEvent: %v", err)
	}

	// No recount has run yet; the gauge must already reflect the threat.
	m := e.GetSecurityMetrics()
	if m.ActiveThreats != 1 {
		t.Errorf("active threats gauge = %d, want 1", m.ActiveThreats)
	}
	if got := len(e.GetActiveThreats()); got != m.ActiveThreats {
		t.Errorf("gauge (%d) disagrees with registry (%d)", m.ActiveThreats, got)
	}
}

func TestEngine_MitigateAndRecount(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)
	ctx := context.Background()

	if err := e.ProcessSecurityEvent(ctx, &schema.SecurityEvent{
		Type:      schema.EventMFABypassAttempt,
		Severity:  schema.SeverityCritical,
		UserID:    "alice",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("ProcessSecurityEvent: %v", err)
	}

	if got := e.RecountActiveThreats(); got != 1 {
		t.Fatalf("active after detection = %d, want 1", got)
	}

	// Mitigating an unknown id changes nothing.
	if e.MitigateThreat(uuid.New(), "analyst", "") {
		t.Error("unknown id should not mitigate")
	}
	if got := e.RecountActiveThreats(); got != 1 {
		t.Errorf("active after failed mitigation = %d, want 1", got)
	}

	th := e.GetActiveThreats()[0]
	if !e.MitigateThreat(th.ID, "analyst", "account locked manually") {
		t.Fatal("expected mitigation to succeed")
	}

	if got := e.RecountActiveThreats(); got != 0 {
		t.Errorf("active after mitigation = %d, want 0", got)
	}
	if got := e.GetSecurityMetrics().ActiveThreats; got != 0 {
		t.Errorf("metrics gauge = %d, want 0", got)
	}

	// The mitigated threat stays queryable by id.
	if _, ok := e.GetThreat(th.ID); !ok {
		t.Error("mitigated threat not found by id")
	}
}

func TestEngine_EvictionClearsDetectionHistory(t *testing.T) {
	base := time.Now()
	clock := base
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	e := newTestEngine(t, &memorySink{}, now)
	ctx := context.Background()

	// Four failures are one short of the threshold.
	for i := 0; i < 4; i++ {
		ev := loginFailure("10.0.0.1", "alice", base.Add(time.Duration(i)*time.Second))
		if err := e.ProcessSecurityEvent(ctx, ev); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	// A day later, everything buffered has aged out.
	mu.Lock()
	clock = base.Add(25 * time.Hour)
	mu.Unlock()

	if removed := e.EvictExpired(); removed != 4 {
		t.Fatalf("evicted = %d, want 4", removed)
	}

	// Old failures are gone, so a fresh one does not complete the pattern.
	ev := loginFailure("10.0.0.1", "alice", time.Now())
	if err := e.ProcessSecurityEvent(ctx, ev); err != nil {
		t.Fatalf("ProcessSecurityEvent: %v", err)
	}
	if got := len(e.GetActiveThreats()); got != 0 {
		t.Errorf("active threats after eviction = %d, want 0", got)
	}
}

func TestEngine_GDPRForwarding(t *testing.T) {
	sink := &memorySink{}
	e := newTestEngine(t, sink, time.Now)

	err := e.ProcessSecurityEvent(context.Background(), &schema.SecurityEvent{
		Type:      schema.EventDataExportRequest,
		Severity:  schema.SeverityLow,
		UserID:    "alice",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessSecurityEvent: %v", err)
	}

	trails := sink.trailsByAction("gdpr_event")
	if len(trails) != 1 {
		t.Fatalf("gdpr trail entries = %d, want 1", len(trails))
	}
	if trails[0].UserID != "alice" {
		t.Errorf("trail user = %s, want alice", trails[0].UserID)
	}
	if trails[0].Details["event_type"] != "data_export_request" {
		t.Errorf("trail details = %v", trails[0].Details)
	}
}

func TestEngine_SinkFailureDoesNotRejectEvents(t *testing.T) {
	sink := &memorySink{failAll: true}
	e := newTestEngine(t, sink, time.Now)

	err := e.ProcessSecurityEvent(context.Background(), &schema.SecurityEvent{
		Type:      schema.EventMFABypassAttempt,
		Severity:  schema.SeverityCritical,
		UserID:    "alice",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("sink failure must not reject the event: %v", err)
	}

	// Detection and storage happened despite the failing sink.
	if got := len(e.GetActiveThreats()); got != 1 {
		t.Errorf("active threats = %d, want 1", got)
	}
	if got := e.GetSecurityMetrics().TotalEvents; got != 1 {
		t.Errorf("total events = %d, want 1", got)
	}
}

func TestEngine_StartStop(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Start(ctx)
	e.Stop()
	// Stop is idempotent.
	e.Stop()
}

func TestEngine_AlertRuleManagement(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)

	if !e.RemoveAlertRule("brute-force-detection") {
		t.Error("expected default rule to be removable")
	}
	if e.RemoveAlertRule("brute-force-detection") {
		t.Error("second removal should fail")
	}
	if got := len(e.GetAlertRules()); got != 2 {
		t.Errorf("rules = %d, want 2", got)
	}
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(t, &memorySink{}, time.Now)

	if err := e.ProcessSecurityEvent(context.Background(), &schema.SecurityEvent{
		Type:      schema.EventLoginSuccess,
		Severity:  schema.SeverityLow,
		UserID:    "alice",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("ProcessSecurityEvent: %v", err)
	}

	stats := e.Stats()
	for _, key := range []string{"buffer", "registry", "rules"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats missing %q section", key)
		}
	}
}
