package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter()
	l.now = clock.Now
	return l, clock
}

func TestMemoryLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests within quota", func(t *testing.T) {
		l, _ := newTestLimiter()
		for i := 0; i < 3; i++ {
			d, err := l.Allow(ctx, "k", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 2-i, d.Remaining)
		}
	})

	t.Run("blocks after exceeding quota", func(t *testing.T) {
		l, _ := newTestLimiter()
		for i := 0; i < 2; i++ {
			d, _ := l.Allow(ctx, "k", 2, time.Minute)
			assert.True(t, d.Allowed)
		}
		d, err := l.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, time.Minute, d.RetryAfter)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		l, _ := newTestLimiter()
		d, _ := l.Allow(ctx, "a", 1, time.Minute)
		assert.True(t, d.Allowed)
		d, _ = l.Allow(ctx, "a", 1, time.Minute)
		assert.False(t, d.Allowed)
		d, _ = l.Allow(ctx, "b", 1, time.Minute)
		assert.True(t, d.Allowed)
	})

	t.Run("window slides", func(t *testing.T) {
		l, clock := newTestLimiter()
		d, _ := l.Allow(ctx, "k", 1, time.Minute)
		assert.True(t, d.Allowed)

		clock.Advance(30 * time.Second)
		d, _ = l.Allow(ctx, "k", 1, time.Minute)
		assert.False(t, d.Allowed)
		assert.Equal(t, 30*time.Second, d.RetryAfter)

		clock.Advance(31 * time.Second)
		d, _ = l.Allow(ctx, "k", 1, time.Minute)
		assert.True(t, d.Allowed)
	})
}

func TestMemoryLimiter_ConcurrentBurst(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, "burst", 30, time.Minute)
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 30, allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()

	_, _ = l.Allow(ctx, "old", 5, time.Minute)
	clock.Advance(2 * time.Minute)
	_, _ = l.Allow(ctx, "fresh", 5, time.Minute)

	assert.Equal(t, 1, l.Cleanup(time.Minute))
	assert.NotContains(t, l.hits, "old")
	assert.Contains(t, l.hits, "fresh")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "actor1:moderateUser:10.0.0.1", Key("actor1", "moderateUser", "10.0.0.1"))
}
