package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "crt"

// KEYS[1] = record key, KEYS[2] = subject index key
// ARGV[1] = encoded record, ARGV[2] = ttl ms, ARGV[3] = token hash
const storeRecordScript = `
local ttl = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
redis.call("SADD", KEYS[2], ARGV[3])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

// KEYS[1] = record key
const takeRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return nil
end
redis.call("DEL", KEYS[1])
return data
`

// KEYS[1] = subject index key
// ARGV[1] = record key prefix
const revokeSubjectScript = `
local removed = 0
for _, hash in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  removed = removed + redis.call("DEL", ARGV[1] .. hash)
end
redis.call("DEL", KEYS[1])
return removed
`

var (
	storeRecordLua   = redis.NewScript(storeRecordScript)
	takeRecordLua    = redis.NewScript(takeRecordScript)
	revokeSubjectLua = redis.NewScript(revokeSubjectScript)
)

// RedisStore is a Redis-backed ledger.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "crt".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + ":t:" + tokenHash
}

func (s *RedisStore) subjectKey(subjectID string) string {
	return s.prefix + ":s:" + subjectID
}

// Store persists rec with a key TTL matching its remaining lifetime.
func (s *RedisStore) Store(ctx context.Context, rec Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrExpired
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	err = storeRecordLua.Run(ctx, s.redis,
		[]string{s.key(rec.TokenHash), s.subjectKey(rec.SubjectID)},
		data, ttl.Milliseconds(), rec.TokenHash,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume removes the record in one round trip. Concurrent callers presenting the same
// hash observe exactly one success.
func (s *RedisStore) Consume(ctx context.Context, tokenHash string) (Record, error) {
	rec, err := s.take(ctx, tokenHash)
	if err != nil {
		return Record{}, err
	}
	return checkExpiry(rec, s.now())
}

// Delete removes the record regardless of its expiry.
func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	_, err := s.take(ctx, tokenHash)
	return err
}

// DeleteBySubject removes every record indexed under subjectID. Reading the
// index and deleting its members happen in one script, so a record stored
// concurrently is either deleted or indexed under a fresh index.
func (s *RedisStore) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	n, err := revokeSubjectLua.Run(ctx, s.redis, []string{s.subjectKey(subjectID)}, s.key("")).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (s *RedisStore) take(ctx context.Context, tokenHash string) (Record, error) {
	result, err := takeRecordLua.Run(ctx, s.redis, []string{s.key(tokenHash)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	data, ok := result.(string)
	if !ok {
		return Record{}, fmt.Errorf("%w: unexpected lua result type", ErrUnavailable)
	}
	rec, err := decodeRecord([]byte(data))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Index cleanup is best effort; stale members are skipped by DeleteBySubject.
	_ = s.redis.SRem(ctx, s.subjectKey(rec.SubjectID), tokenHash).Err()

	return rec, nil
}
