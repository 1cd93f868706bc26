package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a valid outcome: the identity or match does not exist upstream.
	ErrNotFound = errors.New("not found")
	// ErrRateLimitExhausted means the local quota wait ceiling was hit.
	ErrRateLimitExhausted = errors.New("rate limit exhausted")
	// ErrUpstreamTransient is only surfaced after retries are exhausted.
	ErrUpstreamTransient = errors.New("upstream temporarily unavailable")
	ErrUpstreamRejected  = errors.New("upstream rejected request")
	// ErrPersistenceConflict is a uniqueness violation on a path that should
	// have been an atomic upsert. Treat it as a bug.
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrConfiguration       = errors.New("configuration error")
	ErrInvalidInput        = errors.New("invalid input")
)

type UpstreamError struct {
	Kind        error
	MethodGroup string
	Status      int
	Attempts    int
	Body        string
	Err         error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.MethodGroup, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Is(target error) bool {
	return target == e.Kind
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsRetryLater reports whether the caller should simply try again shortly.
func IsRetryLater(err error) bool {
	return errors.Is(err, ErrUpstreamTransient) || errors.Is(err, ErrRateLimitExhausted)
}
