// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics registry: named gauges set by components, counters bumped
// by them, both exported as one snapshot.

package control

import (
	"sync"
	"time"

	"github.com/momentics/hioload-rt/internal/clock"
)

// MetricsRegistry holds the latest metric values.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{metrics: make(map[string]any)}
}

// Set sets or replaces a metric.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = clock.Now()
	mr.mu.Unlock()
}

// Add bumps an integer counter, creating it at zero.
func (mr *MetricsRegistry) Add(key string, delta int64) int64 {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	n, _ := mr.metrics[key].(int64)
	n += delta
	mr.metrics[key] = n
	mr.updated = clock.Now()
	return n
}

// GetSnapshot returns a copy of all metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated returns the time of the last change.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
