// Package buffer provides the age-bounded in-memory event store that all
// detectors read from.
package buffer

import (
	"sync"
	"sync/atomic"
	"time"

	"sentinel-engine/internal/schema"
)

// Predicate selects events from a snapshot.
type Predicate func(*schema.SecurityEvent) bool

// View is the read-only surface handed to detectors.
type View interface {
	// Snapshot returns all buffered events satisfying the predicate, in
	// append order. A nil predicate selects everything.
	Snapshot(pred Predicate) []*schema.SecurityEvent
}

// Buffer is an ordered collection of recently observed security events.
// Events are only removed by the maintenance scheduler's eviction task.
type Buffer struct {
	mu     sync.RWMutex
	events []*schema.SecurityEvent

	totalAppended uint64
	totalEvicted  uint64
}

// New creates an empty event buffer.
func New() *Buffer {
	return &Buffer{
		events: make([]*schema.SecurityEvent, 0, 1024),
	}
}

// Append adds an event to the buffer in arrival order.
func (b *Buffer) Append(event *schema.SecurityEvent) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	atomic.AddUint64(&b.totalAppended, 1)
}

// Snapshot returns all events satisfying the predicate, in append order.
func (b *Buffer) Snapshot(pred Predicate) []*schema.SecurityEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*schema.SecurityEvent, 0, len(b.events))
	for _, e := range b.events {
		if pred == nil || pred(e) {
			result = append(result, e)
		}
	}
	return result
}

// EvictBefore drops events with a timestamp before cutoff and returns the
// number removed.
func (b *Buffer) EvictBefore(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.events[:0]
	for _, e := range b.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(b.events) - len(kept)
	// Nil trailing slots so evicted events can be collected.
	for i := len(kept); i < len(b.events); i++ {
		b.events[i] = nil
	}
	b.events = kept
	atomic.AddUint64(&b.totalEvicted, uint64(removed))
	return removed
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Stats returns buffer statistics.
func (b *Buffer) Stats() map[string]interface{} {
	return map[string]interface{}{
		"depth":          b.Len(),
		"total_appended": atomic.LoadUint64(&b.totalAppended),
		"total_evicted":  atomic.LoadUint64(&b.totalEvicted),
	}
}
