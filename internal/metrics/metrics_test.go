package metrics

import (
	"math"
	"testing"
	"time"

	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(typ schema.EventType, sev schema.Severity) *schema.SecurityEvent {
	return &schema.SecurityEvent{Type: typ, Severity: sev, Timestamp: now}
}

func TestAggregator_InitialState(t *testing.T) {
	a := NewAggregator()
	snap := a.Snapshot()

	if snap.TotalEvents != 0 {
		t.Errorf("total events = %d, want 0", snap.TotalEvents)
	}
	if snap.RiskScore != 0 {
		t.Errorf("risk score = %f, want 0", snap.RiskScore)
	}
	if snap.ComplianceScore != 100 {
		t.Errorf("compliance score = %f, want 100", snap.ComplianceScore)
	}
}

func TestAggregator_RiskEMA(t *testing.T) {
	a := NewAggregator()

	// From zero, one critical event moves the EMA to 0.1 * 30.
	a.RecordEvent(event(schema.EventMFABypassAttempt, schema.SeverityCritical), now)
	if got := a.Snapshot().RiskScore; math.Abs(got-3.0) > 1e-9 {
		t.Errorf("risk after one critical = %f, want 3.0", got)
	}

	// A second critical event: 0.9*3.0 + 0.1*30 = 5.7.
	a.RecordEvent(event(schema.EventMFABypassAttempt, schema.SeverityCritical), now)
	if got := a.Snapshot().RiskScore; math.Abs(got-5.7) > 1e-9 {
		t.Errorf("risk after two criticals = %f, want 5.7", got)
	}

	// A low event pulls it back toward 1: 0.9*5.7 + 0.1*1 = 5.23.
	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityLow), now)
	if got := a.Snapshot().RiskScore; math.Abs(got-5.23) > 1e-9 {
		t.Errorf("risk after low = %f, want 5.23", got)
	}
}

func TestAggregator_ComplianceBounds(t *testing.T) {
	a := NewAggregator()

	// 25 critical events would push compliance to -25 without the clamp.
	for i := 0; i < 25; i++ {
		a.RecordEvent(event(schema.EventUnauthorizedAccess, schema.SeverityCritical), now)
	}
	if got := a.Snapshot().ComplianceScore; got != 0 {
		t.Errorf("compliance after 25 criticals = %f, want 0", got)
	}

	// Recovery is slow and never exceeds 100.
	for i := 0; i < 2000; i++ {
		a.RecordEvent(event(schema.EventLoginSuccess, schema.SeverityLow), now)
	}
	if got := a.Snapshot().ComplianceScore; got != 100 {
		t.Errorf("compliance after recovery = %f, want 100 (clamped)", got)
	}
}

func TestAggregator_ComplianceDecay(t *testing.T) {
	a := NewAggregator()

	a.RecordEvent(event(schema.EventUnauthorizedAccess, schema.SeverityCritical), now)
	if got := a.Snapshot().ComplianceScore; math.Abs(got-95) > 1e-9 {
		t.Errorf("compliance after critical = %f, want 95", got)
	}

	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityHigh), now)
	if got := a.Snapshot().ComplianceScore; math.Abs(got-93) > 1e-9 {
		t.Errorf("compliance after high = %f, want 93", got)
	}

	// Medium and low events do not decay the score.
	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityMedium), now)
	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityLow), now)
	if got := a.Snapshot().ComplianceScore; math.Abs(got-93) > 1e-9 {
		t.Errorf("compliance after medium+low = %f, want 93", got)
	}

	a.RecordEvent(event(schema.EventMFAEnabled, schema.SeverityLow), now)
	if got := a.Snapshot().ComplianceScore; math.Abs(got-93.1) > 1e-9 {
		t.Errorf("compliance after mfa_enabled = %f, want 93.1", got)
	}
}

func TestAggregator_Counters(t *testing.T) {
	a := NewAggregator()

	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityMedium), now)
	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityMedium), now)
	a.RecordEvent(event(schema.EventLoginSuccess, schema.SeverityLow), now)

	a.RecordThreat(threat.New(threat.TypeBruteForceAttack, schema.SeverityHigh, "t1"))
	a.RecordThreat(threat.New(threat.TypeBruteForceAttack, schema.SeverityHigh, "t2"))
	a.SetActiveThreats(2)

	snap := a.Snapshot()
	if snap.TotalEvents != 3 {
		t.Errorf("total events = %d, want 3", snap.TotalEvents)
	}
	if snap.EventsByType[schema.EventLoginFailure] != 2 {
		t.Errorf("login_failure count = %d, want 2", snap.EventsByType[schema.EventLoginFailure])
	}
	if snap.ThreatCount != 2 {
		t.Errorf("threat count = %d, want 2", snap.ThreatCount)
	}
	if snap.ThreatsByType[threat.TypeBruteForceAttack] != 2 {
		t.Errorf("brute force count = %d, want 2", snap.ThreatsByType[threat.TypeBruteForceAttack])
	}
	if snap.ActiveThreats != 2 {
		t.Errorf("active threats = %d, want 2", snap.ActiveThreats)
	}
	if !snap.LastUpdated.Equal(now) {
		t.Errorf("last updated = %v, want %v", snap.LastUpdated, now)
	}
}

func TestAggregator_RecordThreatMovesActiveGauge(t *testing.T) {
	a := NewAggregator()

	a.RecordThreat(threat.New(threat.TypeMFABypassAttempt, schema.SeverityCritical, "bypass"))
	if got := a.Snapshot().ActiveThreats; got != 1 {
		t.Errorf("active threats after detection = %d, want 1", got)
	}

	a.RecordThreat(threat.New(threat.TypeBruteForceAttack, schema.SeverityHigh, "spray"))
	if got := a.Snapshot().ActiveThreats; got != 2 {
		t.Errorf("active threats after second detection = %d, want 2", got)
	}

	// The recount remains authoritative for decreases.
	a.SetActiveThreats(1)
	if got := a.Snapshot().ActiveThreats; got != 1 {
		t.Errorf("active threats after recount = %d, want 1", got)
	}
}

func TestAggregator_SnapshotIsolation(t *testing.T) {
	a := NewAggregator()
	a.RecordEvent(event(schema.EventLoginFailure, schema.SeverityLow), now)

	snap := a.Snapshot()
	snap.EventsByType[schema.EventLoginFailure] = 99

	if got := a.Snapshot().EventsByType[schema.EventLoginFailure]; got != 1 {
		t.Errorf("snapshot mutation leaked into aggregator: count = %d, want 1", got)
	}
}
