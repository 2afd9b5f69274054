package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a token if so
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewPerMinute returns a token bucket refilled evenly at requestsPerMinute.
// burst is the number of requests allowed back to back; values below 1 are
// treated as 1.
func NewPerMinute(requestsPerMinute, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	every := time.Minute / time.Duration(max(requestsPerMinute, 1))
	return &TokenBucket{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Unlimited returns a Limiter that never blocks
func Unlimited() Limiter {
	return &TokenBucket{limiter: rate.NewLimiter(rate.Inf, 1)}
}
