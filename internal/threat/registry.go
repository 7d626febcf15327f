package threat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry stores detected threats and tracks their lifecycle.
type Registry struct {
	mu      sync.RWMutex
	threats map[uuid.UUID]*Threat
	now     func() time.Time
}

// NewRegistry creates an empty threat registry.
func NewRegistry() *Registry {
	return &Registry{
		threats: make(map[uuid.UUID]*Threat),
		now:     time.Now,
	}
}

// SetClock overrides the registry clock. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Store records a detected threat by id.
func (r *Registry) Store(t *Threat) {
	r.mu.Lock()
	r.threats[t.ID] = t
	r.mu.Unlock()

	slog.Info("threat stored",
		"threat_id", t.ID,
		"type", t.Type,
		"severity", t.Severity,
		"user_id", t.UserID,
		"ip_address", t.IPAddress)
}

// Get retrieves a threat by id.
func (r *Registry) Get(id uuid.UUID) (*Threat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threats[id]
	return t, ok
}

// Active returns all threats with status active.
func (r *Registry) Active() []*Threat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Threat
	for _, t := range r.threats {
		if t.Status == StatusActive {
			result = append(result, t)
		}
	}
	return result
}

// ActiveCount returns the number of threats with status active.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.threats {
		if t.Status == StatusActive {
			n++
		}
	}
	return n
}

// Mitigate marks an active threat as mitigated, recording who and why.
// Returns false when the id is unknown or the threat is not active.
func (r *Registry) Mitigate(id uuid.UUID, mitigatedBy, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threats[id]
	if !ok || t.Status != StatusActive {
		return false
	}

	now := r.now()
	t.Status = StatusMitigated
	t.MitigatedAt = &now
	t.MitigatedBy = mitigatedBy
	if reason != "" {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any)
		}
		t.Metadata["mitigation_reason"] = reason
	}

	slog.Info("threat mitigated", "threat_id", id, "mitigated_by", mitigatedBy)
	return true
}

// UpdateStatus transitions an active threat to investigating or
// false_positive. All other transitions are rejected.
func (r *Registry) UpdateStatus(id uuid.UUID, status Status) bool {
	if status != StatusInvestigating && status != StatusFalsePositive {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threats[id]
	if !ok || t.Status != StatusActive {
		return false
	}
	t.Status = status
	return true
}

// CountByType returns per-type threat counts.
func (r *Registry) CountByType() map[Type]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Type]int)
	for _, t := range r.threats {
		counts[t.Type]++
	}
	return counts
}

// Stats returns registry statistics.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := make(map[string]int)
	byType := make(map[string]int)
	for _, t := range r.threats {
		byStatus[string(t.Status)]++
		byType[string(t.Type)]++
	}

	return map[string]interface{}{
		"total":     len(r.threats),
		"by_status": byStatus,
		"by_type":   byType,
	}
}
