// rate_limiter.go - Token bucket that paces outbound LLM calls

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	pollInterval   time.Duration
	mu             sync.Mutex
}

// NewRateLimiter creates a new rate limiter
// maxTokens: burst size
// refillRate: time between token refills
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
		pollInterval:   100 * time.Millisecond,
	}
}

// refill adds tokens for elapsed time; caller holds mu
func (rl *RateLimiter) refill(now time.Time) {
	tokensToAdd := int(now.Sub(rl.lastRefillTime) / rl.refillRate)
	if tokensToAdd <= 0 {
		return
	}
	rl.tokens += tokensToAdd
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefillTime = rl.lastRefillTime.Add(time.Duration(tokensToAdd) * rl.refillRate)
}

// TryAcquire takes a token if one is available without waiting
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}

// Wait blocks until a token is available or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.TryAcquire() {
			return nil
		}
		timer := time.NewTimer(rl.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available reports the tokens currently in the bucket
func (rl *RateLimiter) Available() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return rl.tokens
}
