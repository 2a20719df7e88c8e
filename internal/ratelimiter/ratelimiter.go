package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles connection acceptance using a token bucket.
//
// This implementation wraps golang.org/x/time/rate to provide:
//   - Token bucket rate limiting (allows bursts while enforcing sustained rate)
//   - Context-aware waiting (respects cancellation)
//
// The dispatcher calls Wait before every Accept. While it waits, new
// connections stay in the kernel's listen backlog, so a burst of clients
// cannot fill the request queue faster than the configured rate.
//
// A nil *RateLimiter is valid and never throttles.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter with the specified rate and burst capacity.
//
// Parameters:
//   - perSecond: Maximum sustained rate (tokens added per second)
//   - burst: Maximum burst size (bucket capacity in tokens)
//
// Special cases:
//   - perSecond = 0: No rate limiting; New returns nil
//   - burst = 0: Burst defaults to perSecond
//
// Example:
//
//	// Accept 500 conn/s sustained, up to 1000 at once
//	limiter := New(500, 1000)
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = perSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Enabled reports whether the limiter throttles at all.
func (r *RateLimiter) Enabled() bool {
	return r != nil
}

// Allow consumes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
//
// Returns:
//   - nil if a token was acquired
//   - context error if the context was cancelled before a token was available
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Delay reports how long the next Wait would block, without consuming a
// token. Used for logging when the throttle engages.
func (r *RateLimiter) Delay() time.Duration {
	if r == nil {
		return 0
	}
	res := r.limiter.Reserve()
	d := res.Delay()
	res.Cancel()
	return d
}

// Limit returns the sustained rate in tokens per second, or 0 when disabled.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}

// Burst returns the bucket capacity, or 0 when disabled.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}
