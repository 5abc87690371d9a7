package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every failure surfaced by the pipeline wraps exactly one of these.
var (
	// ErrValidation signals a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrFilterValidation signals a metadata filter that must not be sent to the vector store.
	ErrFilterValidation = errors.New("invalid metadata filter")
	// ErrUnauthenticated signals a missing or unknown session, or a rejected upstream credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired signals a session past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden signals an authenticated caller without access.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound signals a missing resource (e.g. vector index).
	ErrNotFound = errors.New("not found")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamUnavailable signals a 5xx from a provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNetwork signals a transport-level failure talking to a provider.
	ErrNetwork = errors.New("network error")
	// ErrTimeout signals that a call exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrDimensionMismatch signals an embedding whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInternal signals an unexpected failure.
	ErrInternal = errors.New("internal error")
)

// UpstreamError describes a failed call to an external collaborator
// (embedding provider, chat model, vector store).
type UpstreamError struct {
	Op         string // e.g. "embedding.create", "chat.tools", "vector.query"
	StatusCode int    // 0 when no HTTP response was received
	Kind       error  // one of the Err* classes above
	Err        error  // underlying cause
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the class and the cause to errors.Is / errors.As.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// HTTPStatus returns the upstream status code; retry classification uses it.
func (e *UpstreamError) HTTPStatus() int { return e.StatusCode }

// NewUpstreamError builds an UpstreamError. A nil kind defaults to ErrInternal.
func NewUpstreamError(op string, status int, kind, cause error) *UpstreamError {
	if kind == nil {
		kind = ErrInternal
	}
	return &UpstreamError{Op: op, StatusCode: status, Kind: kind, Err: cause}
}

// ClassOf returns the error class sentinel carried by err, or ErrInternal.
func ClassOf(err error) error {
	for _, class := range classes {
		if errors.Is(err, class) {
			return class
		}
	}
	return ErrInternal
}

// classes is ordered most-specific first.
var classes = []error{
	ErrFilterValidation,
	ErrValidation,
	ErrSessionExpired,
	ErrUnauthenticated,
	ErrForbidden,
	ErrDimensionMismatch,
	ErrNotFound,
	ErrRateLimited,
	ErrTimeout,
	ErrUpstreamUnavailable,
	ErrNetwork,
}

// Severity ranks classes for picking a representative error when every tool call failed.
// Higher is more severe.
func Severity(err error) int {
	switch ClassOf(err) {
	case ErrUnauthenticated, ErrSessionExpired, ErrForbidden:
		return 6
	case ErrDimensionMismatch, ErrInternal:
		return 5
	case ErrUpstreamUnavailable, ErrNetwork:
		return 4
	case ErrTimeout:
		return 3
	case ErrRateLimited:
		return 2
	case ErrNotFound:
		return 1
	default:
		return 0
	}
}
