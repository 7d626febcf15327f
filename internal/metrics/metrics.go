// Package metrics maintains derived risk and compliance metrics over the
// event stream.
package metrics

import (
	"sync"
	"time"

	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

// riskAlpha is the EMA smoothing factor for the risk score.
const riskAlpha = 0.1

// severityScore maps event severity to a risk sample.
var severityScore = map[schema.Severity]float64{
	schema.SeverityLow:      1,
	schema.SeverityMedium:   5,
	schema.SeverityHigh:     15,
	schema.SeverityCritical: 30,
}

// SecurityMetrics is a point-in-time snapshot of the derived metrics.
// ComplianceScore is always within [0, 100]; ActiveThreats equals the count
// of active threats at the last recount.
type SecurityMetrics struct {
	TotalEvents     uint64                   `json:"total_events"`
	ThreatCount     uint64                   `json:"threat_count"`
	ActiveThreats   int                      `json:"active_threats"`
	RiskScore       float64                  `json:"risk_score"`
	ComplianceScore float64                  `json:"compliance_score"`
	EventsByType    map[schema.EventType]int `json:"events_by_type"`
	ThreatsByType   map[threat.Type]int      `json:"threats_by_type"`
	LastUpdated     time.Time                `json:"last_updated"`
}

// Aggregator accumulates metrics as a pure function of the event stream.
type Aggregator struct {
	mu sync.RWMutex
	m  SecurityMetrics
}

// NewAggregator creates a metrics aggregator. The compliance score starts
// at 100 and only decays on severe events.
func NewAggregator() *Aggregator {
	return &Aggregator{
		m: SecurityMetrics{
			ComplianceScore: 100,
			EventsByType:    make(map[schema.EventType]int),
			ThreatsByType:   make(map[threat.Type]int),
		},
	}
}

// RecordEvent updates counters, the risk EMA, and the compliance score for
// one incoming event.
func (a *Aggregator) RecordEvent(event *schema.SecurityEvent, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.m.TotalEvents++
	a.m.EventsByType[event.Type]++
	a.m.LastUpdated = now

	a.m.RiskScore = (1-riskAlpha)*a.m.RiskScore + riskAlpha*severityScore[event.Severity]

	switch event.Severity {
	case schema.SeverityCritical:
		a.m.ComplianceScore = max(0, a.m.ComplianceScore-5)
	case schema.SeverityHigh:
		a.m.ComplianceScore = max(0, a.m.ComplianceScore-2)
	}
	if event.Type == schema.EventLoginSuccess || event.Type == schema.EventMFAEnabled {
		a.m.ComplianceScore = min(100, a.m.ComplianceScore+0.1)
	}
}

// RecordThreat increments the monotonic threat counters. A newly detected
// threat is active, so the active gauge moves immediately; the periodic
// recount reconciles decreases from mitigation.
func (a *Aggregator) RecordThreat(t *threat.Threat) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.m.ThreatCount++
	a.m.ThreatsByType[t.Type]++
	a.m.ActiveThreats++
}

// SetActiveThreats records the result of an active-threat recount.
func (a *Aggregator) SetActiveThreats(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m.ActiveThreats = n
}

// Snapshot returns a copy of the current metrics.
func (a *Aggregator) Snapshot() SecurityMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := a.m
	snap.EventsByType = make(map[schema.EventType]int, len(a.m.EventsByType))
	for k, v := range a.m.EventsByType {
		snap.EventsByType[k] = v
	}
	snap.ThreatsByType = make(map[threat.Type]int, len(a.m.ThreatsByType))
	for k, v := range a.m.ThreatsByType {
		snap.ThreatsByType[k] = v
	}
	return snap
}
