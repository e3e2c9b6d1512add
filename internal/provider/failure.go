package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sells-group/visibility-cli/internal/resilience"
)

// FailureKind is the typed reason a provider call failed.
type FailureKind string

const (
	FailureRateLimited     FailureKind = "rate_limited"
	FailureTimeout         FailureKind = "timeout"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureUnavailable     FailureKind = "unavailable"
)

// Failure is the only error type a Client returns.
type Failure struct {
	Kind     FailureKind
	Provider string
	Err      error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("provider %s: %s", f.Provider, f.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", f.Provider, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// StatusError carries the HTTP status of a failed vendor call.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// AsFailure extracts a *Failure from err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// classify maps a transport error onto the failure taxonomy.
func classify(provider string, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}

	kind := FailureUnavailable
	var se *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		kind = FailureUnavailable
	case errors.As(err, &se):
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			kind = FailureRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = FailureTimeout
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FailureTimeout
	}
	return &Failure{Kind: kind, Provider: provider, Err: err}
}

// retryable decides whether a transport retry is worth it. Rate limits are
// never retried.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.StatusCode)
	}
	return resilience.IsTransient(err)
}

// trips decides whether an error counts toward opening the circuit.
func trips(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusRequestTimeout
	}
	return !errors.Is(err, context.Canceled)
}
