package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the token fingerprint.
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpired is returned by Consume when the matched record had already expired.
	// The record is removed either way.
	ErrExpired = errors.New("refresh token expired")
	// ErrUnavailable wraps storage backend failures.
	ErrUnavailable = errors.New("refresh ledger unavailable")
)

// Record is one issued, not yet redeemed refresh token.
type Record struct {
	ID        string
	TokenHash string
	SubjectID string
	ExpiresAt time.Time
}

// Store is the persistence contract for refresh-token records.
type Store interface {
	// Store persists rec. Any failure aborts the surrounding issuance.
	Store(ctx context.Context, rec Record) error
	// Consume atomically removes and returns the record for tokenHash.
	Consume(ctx context.Context, tokenHash string) (Record, error)
	// Delete removes the record for tokenHash, returning ErrNotFound when nothing was removed.
	Delete(ctx context.Context, tokenHash string) error
	// DeleteBySubject removes every record owned by subjectID and returns how many were removed.
	DeleteBySubject(ctx context.Context, subjectID string) (int, error)
}

// Fingerprint returns the lookup key for a refresh token value.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func checkExpiry(rec Record, now time.Time) (Record, error) {
	if now.After(rec.ExpiresAt) {
		return Record{}, ErrExpired
	}
	return rec, nil
}
