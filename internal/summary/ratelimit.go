package summary

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket for limiting summarization calls.
type RateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a bucket holding maxTokens, refilled one token per
// refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// GetToken takes a token if one is available, refilling based on elapsed
// time first.
func (r *RateLimiter) GetToken() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	if add := int(elapsed / r.refillRate); add > 0 {
		r.tokens = min(r.maxTokens, r.tokens+add)
		r.lastRefill = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}
