package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultMaxRetries = 3

// TokenReadyFunc receives a freshly minted or renewed record, plaintext token included.
type TokenReadyFunc func(ctx context.Context, rec Record) error

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithTokenReady installs the callback fired after Request persisted a record.
func WithTokenReady(fn TokenReadyFunc) Option {
	return func(m *Machine) { m.onTokenReady = fn }
}

// WithMaxRetries bounds how often Request re-reads after a lost compare-and-swap.
func WithMaxRetries(n int) Option {
	return func(m *Machine) { m.maxRetries = n }
}

// Machine drives verification records through their lifecycle.
type Machine struct {
	store        Store
	tokens       TokenSource
	policy       Policy
	now          func() time.Time
	onTokenReady TokenReadyFunc
	maxRetries   int
}

// NewMachine validates policy and returns a Machine over store.
func NewMachine(store Store, tokens TokenSource, policy Policy, opts ...Option) (*Machine, error) {
	if store == nil {
		return nil, errors.New("verification: store is required")
	}
	if tokens == nil {
		return nil, errors.New("verification: token source is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		store:      store,
		tokens:     tokens,
		policy:     policy,
		now:        time.Now,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxRetries < 0 {
		m.maxRetries = 0
	}
	return m, nil
}

// Policy returns the machine's policy.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Create builds a fresh, unpersisted record with one attempt recorded.
func (m *Machine) Create(subjectID string, purpose Purpose) (Record, error) {
	ttl, ok := m.policy.TTL[purpose]
	if !ok || ttl <= 0 {
		return Record{}, fmt.Errorf("verification: unknown purpose %q", purpose)
	}

	token, err := m.tokens.GenerateToken(subjectID)
	if err != nil {
		return Record{}, err
	}
	now := m.now()

	return Record{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Purpose:     purpose,
		Token:       token,
		TokenHash:   m.tokens.Hash(token),
		ExpiresAt:   now.Add(ttl),
		Attempts:    1,
		LastAttempt: now,
	}, nil
}

// Validate applies expiry and throttling to rec and, when allowed, returns it with the
// attempt recorded. The result is not persisted.
//
// Expiry is checked first: an expired record reports KindExpired regardless of attempts.
func (m *Machine) Validate(rec Record) (Record, error) {
	now := m.now()
	if now.After(rec.ExpiresAt) {
		return Record{}, expired()
	}

	if rec.Attempts >= m.policy.FreeAttempts && !rec.LastAttempt.IsZero() {
		elapsed := now.Sub(rec.LastAttempt)
		if elapsed < m.policy.Cooldown {
			return Record{}, &Error{
				Kind:     KindRateLimited,
				UnlockAt: now.Add(m.policy.Cooldown - elapsed),
			}
		}
	}

	rec.Attempts++
	rec.LastAttempt = now
	return rec, nil
}

// Request ensures a live record exists for (subjectID, purpose) and returns it with a
// fresh token. A live record is renewed only if Validate allows it.
func (m *Machine) Request(ctx context.Context, subjectID string, purpose Purpose) (Record, error) {
	if !purpose.Valid() {
		return Record{}, fmt.Errorf("verification: unknown purpose %q", purpose)
	}

	var (
		rec Record
		err error
	)
	for attempt := 0; ; attempt++ {
		rec, err = m.request(ctx, subjectID, purpose)
		if !errors.Is(err, ErrConflict) || attempt >= m.maxRetries {
			break
		}
	}
	if err != nil {
		return Record{}, err
	}

	if m.onTokenReady != nil {
		if err := m.onTokenReady(ctx, rec); err != nil {
			return rec, fmt.Errorf("%w: %v", ErrDelivery, err)
		}
	}
	return rec, nil
}

func (m *Machine) request(ctx context.Context, subjectID string, purpose Purpose) (Record, error) {
	current, err := m.store.Get(ctx, subjectID, purpose)
	switch {
	case errors.Is(err, ErrNotFound):
		return m.insertNew(ctx, subjectID, purpose)
	case err != nil:
		return Record{}, err
	}

	next, err := m.Validate(current)
	if errors.Is(err, ErrExpired) {
		if err := m.store.Delete(ctx, current); err != nil {
			return Record{}, err
		}
		return m.insertNew(ctx, subjectID, purpose)
	}
	if err != nil {
		return Record{}, err
	}

	token, err := m.tokens.GenerateToken(subjectID)
	if err != nil {
		return Record{}, err
	}
	next.Token = token
	next.TokenHash = m.tokens.Hash(token)
	next.ExpiresAt = next.LastAttempt.Add(m.policy.TTL[purpose])

	if err := m.store.Swap(ctx, current, next.persisted()); err != nil {
		return Record{}, err
	}
	return next, nil
}

func (m *Machine) insertNew(ctx context.Context, subjectID string, purpose Purpose) (Record, error) {
	rec, err := m.Create(subjectID, purpose)
	if err != nil {
		return Record{}, err
	}
	if err := m.store.Insert(ctx, rec.persisted()); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Consume redeems token for purpose. sideEffect runs with the matched record; the record
// is deleted only if sideEffect succeeds. A nil sideEffect always succeeds.
func (m *Machine) Consume(ctx context.Context, token string, purpose Purpose, sideEffect func(ctx context.Context, rec Record) error) (string, error) {
	if token == "" {
		return "", notFound()
	}

	var subjectID string
	err := m.store.Redeem(ctx, purpose, m.tokens.Hash(token), func(ctx context.Context, rec Record) error {
		if m.now().After(rec.ExpiresAt) {
			return expired()
		}
		if sideEffect != nil {
			if err := sideEffect(ctx, rec); err != nil {
				return err
			}
		}
		subjectID = rec.SubjectID
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return "", notFound()
	}
	if err != nil {
		return "", err
	}
	return subjectID, nil
}

// Pending returns the stored record for (subjectID, purpose) without the plaintext token.
func (m *Machine) Pending(ctx context.Context, subjectID string, purpose Purpose) (Record, error) {
	rec, err := m.store.Get(ctx, subjectID, purpose)
	if errors.Is(err, ErrNotFound) {
		return Record{}, notFound()
	}
	return rec, err
}

// PurgeExpired asks the store to drop records past their expiry. Stores that expire
// records on their own report zero.
func (m *Machine) PurgeExpired(ctx context.Context) (int, error) {
	p, ok := m.store.(interface {
		PurgeExpired(ctx context.Context, now time.Time) (int, error)
	})
	if !ok {
		return 0, nil
	}
	return p.PurgeExpired(ctx, m.now())
}
