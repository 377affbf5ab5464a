package verification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Purpose selects the flow a verification record belongs to.
type Purpose string

const (
	EmailConfirm  Purpose = "email_confirm"
	PasswordReset Purpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == EmailConfirm || p == PasswordReset
}

const (
	DefaultEmailConfirmTTL  = 240 * time.Hour
	DefaultPasswordResetTTL = 24 * time.Hour
	DefaultFreeAttempts     = 2
	DefaultCooldown         = 5 * time.Minute
)

// Policy holds the lifetime and throttling parameters.
type Policy struct {
	TTL          map[Purpose]time.Duration
	FreeAttempts int
	Cooldown     time.Duration
}

// DefaultPolicy returns the stock lifetimes and throttling.
func DefaultPolicy() Policy {
	return Policy{
		TTL: map[Purpose]time.Duration{
			EmailConfirm:  DefaultEmailConfirmTTL,
			PasswordReset: DefaultPasswordResetTTL,
		},
		FreeAttempts: DefaultFreeAttempts,
		Cooldown:     DefaultCooldown,
	}
}

// Validate checks that every purpose has a positive TTL.
func (p Policy) Validate() error {
	for _, purpose := range []Purpose{EmailConfirm, PasswordReset} {
		if p.TTL[purpose] <= 0 {
			return fmt.Errorf("verification: ttl for %s must be > 0", purpose)
		}
	}
	if p.FreeAttempts < 1 {
		return errors.New("verification: free attempts must be >= 1")
	}
	if p.Cooldown < 0 {
		return errors.New("verification: cooldown must be >= 0")
	}
	return nil
}

// Record is one pending verification.
//
// Token holds the plaintext value and is only populated on records returned by
// [Machine.Create] and [Machine.Request]. Stores never see it.
type Record struct {
	ID          string
	SubjectID   string
	Purpose     Purpose
	Token       string
	TokenHash   string
	ExpiresAt   time.Time
	Attempts    int
	LastAttempt time.Time // zero when no attempt has been recorded
}

// persisted strips the plaintext token.
func (r Record) persisted() Record {
	r.Token = ""
	return r
}

// Store persists verification records. Implementations keep at most one record per
// (SubjectID, Purpose) and index records by TokenHash.
type Store interface {
	// Get returns the record for (subjectID, purpose) or ErrNotFound.
	Get(ctx context.Context, subjectID string, purpose Purpose) (Record, error)
	// Insert stores rec, failing with ErrConflict if a record already exists for its
	// subject and purpose.
	Insert(ctx context.Context, rec Record) error
	// Swap replaces prev with next if the stored record still equals prev.
	Swap(ctx context.Context, prev, next Record) error
	// Delete removes rec if the stored record still equals it.
	Delete(ctx context.Context, rec Record) error
	// Redeem looks up the record for (purpose, tokenHash) and runs fn on it. The record
	// is removed when fn returns nil or an error wrapping ErrExpired, and kept otherwise.
	Redeem(ctx context.Context, purpose Purpose, tokenHash string, fn func(ctx context.Context, rec Record) error) error
}

// TokenSource mints opaque tokens and fingerprints them. *secret.Provider satisfies it.
type TokenSource interface {
	GenerateToken(seed string) (string, error)
	Hash(input string) string
}
