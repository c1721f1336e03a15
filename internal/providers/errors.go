package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies upstream failures into the closed taxonomy the fallback
// executor and the orchestrator route on.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindRateLimit     Kind = "rate_limit_upstream"
	KindTransient     Kind = "transient_upstream"
	KindFatal         Kind = "fatal_upstream"
	KindMisconfigured Kind = "misconfigured_upstream"
)

// Error is the structured failure every adapter returns. Provider is the
// adapter name, Kind the taxonomy classification.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a provider name and taxonomy kind.
func NewError(provider string, kind Kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Errorf is NewError with a formatted message.
func Errorf(provider string, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the taxonomy kind from an error chain. ok is false when the
// error did not originate from an adapter.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// StatusError captures a non-2xx HTTP status from an upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Classify maps a transport or status error onto the taxonomy:
// 429 rate-limited, 503 and other 5xx transient, remaining 4xx fatal,
// context deadline or net timeout is a timeout, anything else transient.
func Classify(provider string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429:
			return NewError(provider, KindRateLimit, err)
		case se.StatusCode == 503:
			return NewError(provider, KindTransient, err)
		case se.StatusCode >= 500:
			return NewError(provider, KindTransient, err)
		default:
			return NewError(provider, KindFatal, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(provider, KindTimeout, err)
	}

	// Connection resets, DNS failures and the like: worth trying elsewhere.
	return NewError(provider, KindTransient, err)
}
