package verification

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("verification record not found")
	ErrExpired     = errors.New("verification record expired")
	ErrRateLimited = errors.New("verification rate limited")

	// ErrConflict is returned by stores when a conditional write lost a race.
	ErrConflict = errors.New("verification record changed concurrently")
	// ErrUnavailable wraps storage backend failures.
	ErrUnavailable = errors.New("verification store unavailable")
	// ErrDelivery wraps failures of the token-ready callback. The record is persisted.
	ErrDelivery = errors.New("verification token delivery failed")

	errUnsupportedVersion = errors.New("unsupported verification record version")
)

// Kind discriminates [Error] values.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindExpired
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is the outcome of a refused verification operation.
// UnlockAt is set only for KindRateLimited.
type Error struct {
	Kind     Kind
	UnlockAt time.Time
}

func (e *Error) Error() string {
	if e.Kind == KindRateLimited {
		return fmt.Sprintf("%v until %s", ErrRateLimited, e.UnlockAt.UTC().Format(time.RFC3339))
	}
	if err := e.Unwrap(); err != nil {
		return err.Error()
	}
	return "verification error: " + e.Kind.String()
}

// Unwrap maps the kind to its sentinel so errors.Is works against ErrNotFound,
// ErrExpired and ErrRateLimited.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindExpired:
		return ErrExpired
	case KindRateLimited:
		return ErrRateLimited
	default:
		return nil
	}
}

// RetryAfter is the wait until UnlockAt, measured from now.
func (e *Error) RetryAfter(now time.Time) time.Duration {
	if d := e.UnlockAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func notFound() error { return &Error{Kind: KindNotFound} }
func expired() error  { return &Error{Kind: KindExpired} }
