package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a per-provider token bucket that tunes itself: each
// success raises the rate by 20% (capped at 2x the configured rate) and each
// 429 halves it (floored at a quarter of the configured rate).
type AdaptiveLimiter struct {
	provider string

	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	max     rate.Limit
	min     rate.Limit
}

// NewAdaptiveLimiter creates a limiter. A non-positive rate disables limiting.
func NewAdaptiveLimiter(provider string, perSec float64, burst int) *AdaptiveLimiter {
	if burst <= 0 {
		burst = 1
	}
	initial := rate.Limit(perSec)
	if perSec <= 0 {
		initial = rate.Inf
	}
	return &AdaptiveLimiter{
		provider: provider,
		limiter:  rate.NewLimiter(initial, burst),
		current:  initial,
		max:      initial * 2,
		min:      initial / 4,
	}
}

// Wait blocks until a request may be issued or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Rate returns the current limit.
func (a *AdaptiveLimiter) Rate() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == rate.Inf {
		return
	}
	next := a.current * 1.2
	if next > a.max {
		next = a.max
	}
	a.current = next
	a.limiter.SetLimit(next)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == rate.Inf {
		return
	}
	next := a.current * 0.5
	if next < a.min {
		next = a.min
	}
	a.current = next
	a.limiter.SetLimit(next)
	zap.L().Warn("provider: reducing rate after 429",
		zap.String("provider", a.provider),
		zap.Float64("new_rate", float64(next)),
	)
}
