package goCreds

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthenticationFailed is returned by Login for an unknown email or a wrong password.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTokenInvalid is returned when an access or temporary token fails verification.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRefreshInvalid is returned for any refresh token that cannot be redeemed.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrTokenExpired is returned when a verification token exists but has expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrRateLimited is matched by every [RateLimitError].
	ErrRateLimited = errors.New("rate limited")
	// ErrAlreadyExists is returned by Register for a taken email.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrPersistence wraps storage failures. It is never retried internally.
	ErrPersistence = errors.New("persistence failure")
	// ErrVerificationNotFound is returned when a verification token matches no pending record.
	ErrVerificationNotFound = errors.New("verification token not found")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound is returned by UserProvider implementations for unknown accounts.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordPolicy is returned when a password violates the configured length bounds.
	ErrPasswordPolicy = errors.New("password does not satisfy policy")
	// ErrInvalidInput is returned for a missing email or token argument.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDeliveryFailed is returned when the Notifier could not deliver a secret.
	// The underlying record is still persisted and can be re-requested.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// RateLimitScope names the guard that refused an attempt.
type RateLimitScope string

const (
	ScopeLogin        RateLimitScope = "login"
	ScopeVerification RateLimitScope = "verification"
)

// RateLimitError reports a refused attempt together with the instant it unlocks.
type RateLimitError struct {
	Scope    RateLimitScope
	UnlockAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %v until %s", e.Scope, ErrRateLimited, e.UnlockAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter returns how long the caller should wait, never negative.
func (e *RateLimitError) RetryAfter() time.Duration {
	if d := time.Until(e.UnlockAt); d > 0 {
		return d
	}
	return 0
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
