package utils

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of duration samples for percentile reporting.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a new duration, evicting the oldest sample when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, d)
	if over := len(l.samples) - l.maxSize; over > 0 {
		l.samples = slices.Delete(l.samples, 0, over)
	}
}

// Percentile returns the p-th percentile (0-100). Returns zero if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.samples) == 0 {
		return 0
	}
	if p <= 0 {
		return slices.Min(l.samples)
	}
	if p >= 100 {
		return slices.Max(l.samples)
	}

	sorted := slices.Clone(l.samples)
	slices.Sort(sorted)

	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[min(max(index, 0), len(sorted)-1)]
}

// Count returns number of samples recorded.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
