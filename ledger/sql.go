package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goCreds/internal/dbx"
)

// SQLStore is a ledger over the refresh_tokens table. It works with *sql.DB or *sql.Tx.
// expires_at is stored as Unix milliseconds so both dialects compare it the same way.
type SQLStore struct {
	db      dbx.DBTX
	dialect dbx.Dialect
	now     func() time.Time
}

// NewSQLStore constructs a store bound to db for the given dialect.
func NewSQLStore(db dbx.DBTX, dialect dbx.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) Store(ctx context.Context, rec Record) error {
	query := s.dialect.Rebind(`
		INSERT INTO refresh_tokens (id, token_hash, subject_id, expires_at)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := dbx.From(ctx, s.db).ExecContext(ctx, query, rec.ID, rec.TokenHash, rec.SubjectID, rec.ExpiresAt.UnixMilli()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume deletes the row and returns it. The DELETE takes the row lock, so
// exactly one of several concurrent callers receives the row.
func (s *SQLStore) Consume(ctx context.Context, tokenHash string) (Record, error) {
	query := s.dialect.Rebind(`
		DELETE FROM refresh_tokens
		WHERE token_hash = ?
		RETURNING id, subject_id, expires_at
	`)

	rec := Record{TokenHash: tokenHash}
	var expiresMillis int64
	err := dbx.From(ctx, s.db).QueryRowContext(ctx, query, tokenHash).Scan(&rec.ID, &rec.SubjectID, &expiresMillis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec.ExpiresAt = time.UnixMilli(expiresMillis)
	return checkExpiry(rec, s.now())
}

func (s *SQLStore) Delete(ctx context.Context, tokenHash string) error {
	query := s.dialect.Rebind(`DELETE FROM refresh_tokens WHERE token_hash = ?`)
	res, err := dbx.From(ctx, s.db).ExecContext(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	query := s.dialect.Rebind(`DELETE FROM refresh_tokens WHERE subject_id = ?`)
	res, err := dbx.From(ctx, s.db).ExecContext(ctx, query, subjectID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// PurgeExpired removes rows that expired before now. Redis expires keys on its own;
// SQL deployments call this periodically.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int, error) {
	query := s.dialect.Rebind(`DELETE FROM refresh_tokens WHERE expires_at < ?`)
	res, err := dbx.From(ctx, s.db).ExecContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}
