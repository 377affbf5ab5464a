package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/goCreds/internal/dbx"
	"github.com/MrEthical07/goCreds/storage"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, dbx.Postgres), mock
}

func newSQLiteStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, dbx.SQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, dbx.SQLite))
	return NewSQLStore(db, dbx.SQLite), db
}

func TestSQLStoreInsertShape(t *testing.T) {
	store, mock := newMockStore(t)
	rec := testRecord("u1", "tok", time.Now().Add(time.Hour))

	q := `(?s)INSERT\s+INTO\s+refresh_tokens\s+\(id,\s*token_hash,\s*subject_id,\s*expires_at\).*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)`
	mock.ExpectExec(q).
		WithArgs(rec.ID, rec.TokenHash, "u1", rec.ExpiresAt.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Store(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreInsertError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("db down"))

	err := store.Store(context.Background(), testRecord("u1", "tok", time.Now().Add(time.Hour)))
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "db down")
}

func TestSQLStoreConsumeShape(t *testing.T) {
	store, mock := newMockStore(t)
	hash := Fingerprint("tok")
	exp := time.Now().Add(time.Hour)

	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s+RETURNING\s+id,\s*subject_id,\s*expires_at`
	mock.ExpectQuery(q).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_id", "expires_at"}).AddRow("r1", "u1", exp.UnixMilli()))

	rec, err := store.Consume(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, "r1", rec.ID)
	require.Equal(t, "u1", rec.SubjectID)
	require.Equal(t, hash, rec.TokenHash)
	require.Equal(t, exp.UnixMilli(), rec.ExpiresAt.UnixMilli())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreConsumeNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`DELETE\s+FROM\s+refresh_tokens`).WillReturnError(sql.ErrNoRows)

	_, err := store.Consume(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreDeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, store.Delete(context.Background(), "missing"), ErrNotFound)
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("u1", "tok", time.Now().Add(time.Hour))
	require.NoError(t, store.Store(ctx, rec))

	got, err := store.Consume(ctx, rec.TokenHash)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "u1", got.SubjectID)

	_, err = store.Consume(ctx, rec.TokenHash)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreConsumeExpiredDeletes(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Now()
	rec := testRecord("u1", "old", now.Add(time.Minute))
	require.NoError(t, store.Store(ctx, rec))

	store.now = func() time.Time { return now.Add(time.Hour) }
	_, err := store.Consume(ctx, rec.TokenHash)
	require.ErrorIs(t, err, ErrExpired)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&n))
	require.Zero(t, n)
}

func TestSQLiteStoreDuplicateHashRejected(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("u1", "tok", time.Now().Add(time.Hour))
	require.NoError(t, store.Store(ctx, rec))
	rec.ID = "another"
	require.ErrorIs(t, store.Store(ctx, rec), ErrUnavailable)
}

func TestSQLiteStoreDeleteAndDeleteBySubject(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, tok := range []string{"a", "b"} {
		require.NoError(t, store.Store(ctx, testRecord("u1", tok, exp)))
	}
	keep := testRecord("u2", "c", exp)
	require.NoError(t, store.Store(ctx, keep))

	require.NoError(t, store.Delete(ctx, Fingerprint("a")))
	require.ErrorIs(t, store.Delete(ctx, Fingerprint("a")), ErrNotFound)

	n, err := store.DeleteBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = store.Consume(ctx, keep.TokenHash)
	require.NoError(t, err)
}

func TestSQLiteStorePurgeExpired(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Store(ctx, testRecord("u1", "old", now.Add(-time.Minute))))
	require.NoError(t, store.Store(ctx, testRecord("u1", "new", now.Add(time.Hour))))

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSQLiteStoreConsumeConcurrent(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("u1", "race", time.Now().Add(time.Hour))
	require.NoError(t, store.Store(ctx, rec))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, rec.TokenHash); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}
