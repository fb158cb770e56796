package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryLimiter keeps a sliding window of request times per key inside the process.
// It serves single-replica deployments and stands in for Redis when Redis fails.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
	log  *slog.Logger
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
		log:  log,
	}
}

// Check records a hit for key when fewer than limit hits fall inside window.
// A rejected hit is not recorded and is reported as ErrLimitExceeded.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := dropBefore(m.hits[key], now.Add(-window))

	result := &Result{Allowed: len(hits) < limit}
	if result.Allowed {
		hits = append(hits, now)
	}
	m.hits[key] = hits

	result.Remaining = max(limit-len(hits), 0)
	result.ResetAt = now.Add(window)
	if len(hits) > 0 {
		result.ResetAt = hits[0].Add(window)
	}

	if !result.Allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}

// Cleanup forgets keys whose latest hit is older than maxAge and returns how many were dropped.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, hits := range m.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(m.hits, key)
			removed++
		}
	}

	return removed
}

// dropBefore removes the leading hits older than start, reusing the backing array.
func dropBefore(hits []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(start) {
		i++
	}

	return append(hits[:0], hits[i:]...)
}
