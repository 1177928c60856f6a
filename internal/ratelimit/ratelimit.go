// Package ratelimit throttles the endpoints that call the design agent.
//
// Each agent call is slow and billed, so generate and refine requests are
// limited per caller with an in-memory token bucket. Limiter is the seam for
// a shared backend when several replicas sit behind one balancer.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the next token, zero when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one token for key. An error signals a limiter
	// malfunction; callers fail open.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases background resources.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always permits.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
