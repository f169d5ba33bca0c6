package util

import (
	"context"
	"sync"
	"time"
)

// minWait keeps a starved caller from spinning.
const minWait = 10 * time.Millisecond

// RateLimiter spaces out provider requests. It holds at most one token, so
// requests never burst. The nil limiter and one built with perMinute <= 0
// never block.
type RateLimiter struct {
	mu       sync.Mutex
	perSec   float64
	tokens   float64
	refilled time.Time
}

// NewRateLimiter allows perMinute requests per minute. The first request
// goes through immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perSec:   float64(perMinute) / 60,
		tokens:   1,
		refilled: time.Now(),
	}
}

// Wait blocks until the next request may be sent or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.perSec <= 0 {
		return ctx.Err()
	}
	for {
		wait := rl.take()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take spends a token if one is available and returns 0, or returns how long
// until one will be.
func (rl *RateLimiter) take() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = min(1, rl.tokens+now.Sub(rl.refilled).Seconds()*rl.perSec)
	rl.refilled = now
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	return max(minWait, time.Duration((1-rl.tokens)/rl.perSec*float64(time.Second)))
}
