package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goCreds/internal/dbx"
)

const recordColumns = `id, subject_id, purpose, token_hash, expires_at, attempts, last_attempt_at`

// SQLStore keeps records in the verification_records table. Conditional writes compare
// id, attempts and token_hash so concurrent renewals cannot both succeed.
type SQLStore struct {
	db      *sql.DB
	dialect dbx.Dialect
}

// NewSQLStore constructs a store over db.
func NewSQLStore(db *sql.DB, dialect dbx.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) conn(ctx context.Context) dbx.DBTX {
	return dbx.From(ctx, s.db)
}

func scanRecord(row interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec         Record
		purpose     string
		expiresAt   int64
		lastAttempt sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.SubjectID, &purpose, &rec.TokenHash, &expiresAt, &rec.Attempts, &lastAttempt); err != nil {
		return Record{}, err
	}
	rec.Purpose = Purpose(purpose)
	rec.ExpiresAt = time.UnixMilli(expiresAt)
	if lastAttempt.Valid {
		rec.LastAttempt = time.UnixMilli(lastAttempt.Int64)
	}
	return rec, nil
}

func lastAttemptArg(rec Record) sql.NullInt64 {
	if rec.LastAttempt.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: rec.LastAttempt.UnixMilli(), Valid: true}
}

func (s *SQLStore) Get(ctx context.Context, subjectID string, purpose Purpose) (Record, error) {
	query := s.dialect.Rebind(`SELECT ` + recordColumns + ` FROM verification_records WHERE subject_id = ? AND purpose = ?`)
	rec, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, query, subjectID, string(purpose)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *SQLStore) Insert(ctx context.Context, rec Record) error {
	query := s.dialect.Rebind(`
		INSERT INTO verification_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	res, err := s.conn(ctx).ExecContext(ctx, query,
		rec.ID, rec.SubjectID, string(rec.Purpose), rec.TokenHash,
		rec.ExpiresAt.UnixMilli(), rec.Attempts, lastAttemptArg(rec),
	)
	return expectOneRow(res, err)
}

func (s *SQLStore) Swap(ctx context.Context, prev, next Record) error {
	query := s.dialect.Rebind(`
		UPDATE verification_records
		SET token_hash = ?, expires_at = ?, attempts = ?, last_attempt_at = ?
		WHERE id = ? AND attempts = ? AND token_hash = ?
	`)
	res, err := s.conn(ctx).ExecContext(ctx, query,
		next.TokenHash, next.ExpiresAt.UnixMilli(), next.Attempts, lastAttemptArg(next),
		prev.ID, prev.Attempts, prev.TokenHash,
	)
	return expectOneRow(res, err)
}

func (s *SQLStore) Delete(ctx context.Context, rec Record) error {
	query := s.dialect.Rebind(`DELETE FROM verification_records WHERE id = ? AND attempts = ? AND token_hash = ?`)
	res, err := s.conn(ctx).ExecContext(ctx, query, rec.ID, rec.Attempts, rec.TokenHash)
	return expectOneRow(res, err)
}

// Redeem runs fn inside a transaction holding the record's row lock. The transaction
// is available to fn through its context (see dbx.From), so writes made by SQL stores
// sharing the database commit or roll back together with the record deletion.
func (s *SQLStore) Redeem(ctx context.Context, purpose Purpose, tokenHash string, fn func(ctx context.Context, rec Record) error) error {
	selectQuery := s.dialect.Rebind(`SELECT ` + recordColumns + ` FROM verification_records WHERE purpose = ? AND token_hash = ?` + s.dialect.ForUpdate())
	deleteQuery := s.dialect.Rebind(`DELETE FROM verification_records WHERE id = ?`)

	var expiredErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, selectQuery, string(purpose), tokenHash))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if err := fn(ctx, rec); err != nil {
			if !errors.Is(err, ErrExpired) {
				return err
			}
			expiredErr = err
		}

		res, err := tx.ExecContext(ctx, deleteQuery, rec.ID)
		if err := expectOneRow(res, err); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return expiredErr
}

// PurgeExpired removes records that expired before now.
func (s *SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	query := s.dialect.Rebind(`DELETE FROM verification_records WHERE expires_at < ?`)
	res, err := s.conn(ctx).ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}
