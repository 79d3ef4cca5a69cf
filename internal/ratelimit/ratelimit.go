// Package ratelimit provides quota enforcement keyed by arbitrary strings.
// Callers build keys from the actor, the action name and the client address;
// every Limiter must count and decide atomically per key.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter accepts or rejects one attempt against quota per window for key.
type Limiter interface {
	Allow(ctx context.Context, key string, quota int, window time.Duration) (Decision, error)
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
