package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	l := NewAdaptiveLimiter("openai", 4, 2)

	for range 10 {
		l.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(l.Rate()), 0.0001)

	for range 10 {
		l.OnRateLimit()
	}
	assert.InDelta(t, 1.0, float64(l.Rate()), 0.0001)
}

func TestAdaptiveLimiter_Unlimited(t *testing.T) {
	l := NewAdaptiveLimiter("openai", 0, 0)
	l.OnRateLimit()
	l.OnSuccess()
	assert.Equal(t, rate.Inf, l.Rate())
	assert.NoError(t, l.Wait(context.Background()))
}
