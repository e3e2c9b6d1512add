package provider

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/visibility-cli/internal/resilience"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"429", &StatusError{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}, FailureRateLimited},
		{"504", &StatusError{StatusCode: http.StatusGatewayTimeout, Err: errors.New("gw")}, FailureTimeout},
		{"408", &StatusError{StatusCode: http.StatusRequestTimeout, Err: errors.New("rt")}, FailureTimeout},
		{"503", &StatusError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}, FailureUnavailable},
		{"401", &StatusError{StatusCode: http.StatusUnauthorized, Err: errors.New("key")}, FailureUnavailable},
		{"deadline", eris.Wrap(context.DeadlineExceeded, "call"), FailureTimeout},
		{"circuit", resilience.ErrCircuitOpen, FailureUnavailable},
		{"conn reset", syscall.ECONNRESET, FailureUnavailable},
		{"existing", &Failure{Kind: FailureInvalidResponse, Provider: "x"}, FailureInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := classify("openai", tt.err)
			assert.Equal(t, tt.want, f.Kind)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&StatusError{StatusCode: 502, Err: errors.New("bad gw")}))
	assert.False(t, retryable(&StatusError{StatusCode: 429, Err: errors.New("rl")}))
	assert.False(t, retryable(&StatusError{StatusCode: 400, Err: errors.New("bad")}))
	assert.False(t, retryable(context.DeadlineExceeded))
	assert.True(t, retryable(syscall.ECONNRESET))
}

func TestTrips(t *testing.T) {
	assert.True(t, trips(&StatusError{StatusCode: 500, Err: errors.New("x")}))
	assert.False(t, trips(&StatusError{StatusCode: 429, Err: errors.New("x")}))
	assert.False(t, trips(context.Canceled))
	assert.True(t, trips(context.DeadlineExceeded))
}

func TestFailure_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	f := &Failure{Kind: FailureUnavailable, Provider: "anthropic", Err: inner}
	assert.Contains(t, f.Error(), "anthropic")
	assert.Contains(t, f.Error(), "unavailable")
	assert.ErrorIs(t, f, inner)

	got, ok := AsFailure(eris.Wrap(f, "wrapped"))
	assert.True(t, ok)
	assert.Equal(t, FailureUnavailable, got.Kind)
}
