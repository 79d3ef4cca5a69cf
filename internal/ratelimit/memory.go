package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryLimiter is a sliding-window limiter held in process memory.
// It is only correct for a single server instance; use RedisLimiter when
// several instances share one quota.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow records an attempt for key if fewer than quota attempts happened
// within the last window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, quota int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := prune(l.hits[key], now.Add(-window))

	if len(valid) >= quota {
		l.hits[key] = valid
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: valid[0].Add(window).Sub(now),
		}, nil
	}

	l.hits[key] = append(valid, now)
	return Decision{Allowed: true, Remaining: quota - len(valid) - 1}, nil
}

// prune drops attempts at or before cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// Cleanup removes keys whose attempts are all older than maxWindow.
func (l *MemoryLimiter) Cleanup(maxWindow time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxWindow)
	removed := 0
	for key, hits := range l.hits {
		if len(prune(hits, cutoff)) == 0 {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine periodically evicts idle keys.
// Returns a function that stops the routine.
func (l *MemoryLimiter) StartCleanupRoutine(interval, maxWindow time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if n := l.Cleanup(maxWindow); n > 0 {
					log.Debug().Int("keys", n).Msg("ratelimit: evicted idle keys")
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
