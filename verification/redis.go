package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "cvr"
	claimTTL           = time.Minute
)

// KEYS[1] = record key, KEYS[2] = token index key
// ARGV[1] = encoded record, ARGV[2] = ttl ms, ARGV[3] = subject id
const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[2])
return 1
`

// KEYS[1] = record key, KEYS[2] = previous token index key, KEYS[3] = next token index key
// ARGV[1] = previous encoded record, ARGV[2] = next encoded record, ARGV[3] = ttl ms, ARGV[4] = subject id
const swapScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[4], "PX", ARGV[3])
return 1
`

// KEYS[1] = record key, KEYS[2] = token index key
// ARGV[1] = expected encoded record
const deleteScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1], KEYS[2])
return 1
`

// KEYS[1] = record key, KEYS[2] = token index key, KEYS[3] = claim key
// ARGV[1] = subject id, ARGV[2] = claim ttl ms
const claimScript = `
if redis.call("GET", KEYS[2]) ~= ARGV[1] then
  return nil
end
local data = redis.call("GET", KEYS[1])
if not data then
  redis.call("DEL", KEYS[2])
  return nil
end
redis.call("SET", KEYS[3], data, "PX", ARGV[2])
redis.call("DEL", KEYS[1], KEYS[2])
return data
`

// KEYS[1] = record key, KEYS[2] = token index key, KEYS[3] = claim key
// ARGV[1] = subject id, ARGV[2] = ttl ms
const restoreScript = `
local data = redis.call("GET", KEYS[3])
redis.call("DEL", KEYS[3])
if not data or redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], data, "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`

var (
	insertLua  = redis.NewScript(insertScript)
	swapLua    = redis.NewScript(swapScript)
	deleteLua  = redis.NewScript(deleteScript)
	claimLua   = redis.NewScript(claimScript)
	restoreLua = redis.NewScript(restoreScript)
)

// RedisStore keeps each record under <prefix>:r:<purpose>:<subject> as CBOR, with a
// token index <prefix>:t:<purpose>:<tokenHash> pointing back at the subject. Keys expire
// with the record.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "cvr".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix, now: time.Now}
}

// WithClock sets the time source used to derive key TTLs. It should match the
// Machine's clock so keys expire together with their records.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisStore) recordKey(subjectID string, purpose Purpose) string {
	return s.prefix + ":r:" + string(purpose) + ":" + subjectID
}

func (s *RedisStore) tokenKey(purpose Purpose, tokenHash string) string {
	return s.prefix + ":t:" + string(purpose) + ":" + tokenHash
}

func (s *RedisStore) claimKey(purpose Purpose, tokenHash string) string {
	return s.prefix + ":c:" + string(purpose) + ":" + tokenHash
}

// ttl keeps keys for at least a second so an expired record is still observable
// by the machine, which deletes it explicitly.
func (s *RedisStore) ttl(rec Record) int64 {
	ms := rec.ExpiresAt.Sub(s.now()).Milliseconds()
	if ms < 1000 {
		return 1000
	}
	return ms
}

func (s *RedisStore) Get(ctx context.Context, subjectID string, purpose Purpose) (Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(subjectID, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *RedisStore) Insert(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	ok, err := insertLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.SubjectID, rec.Purpose), s.tokenKey(rec.Purpose, rec.TokenHash)},
		data, s.ttl(rec), rec.SubjectID,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok != 1 {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Swap(ctx context.Context, prev, next Record) error {
	prevData, err := encodeRecord(prev)
	if err != nil {
		return err
	}
	nextData, err := encodeRecord(next)
	if err != nil {
		return err
	}
	ok, err := swapLua.Run(ctx, s.redis,
		[]string{
			s.recordKey(prev.SubjectID, prev.Purpose),
			s.tokenKey(prev.Purpose, prev.TokenHash),
			s.tokenKey(next.Purpose, next.TokenHash),
		},
		prevData, nextData, s.ttl(next), next.SubjectID,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok != 1 {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	ok, err := deleteLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.SubjectID, rec.Purpose), s.tokenKey(rec.Purpose, rec.TokenHash)},
		data,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok != 1 {
		return ErrConflict
	}
	return nil
}

// Redeem moves the record to a claim key, runs fn, and either drops the claim or puts
// the record back. Concurrent redeemers of the same token see ErrNotFound.
func (s *RedisStore) Redeem(ctx context.Context, purpose Purpose, tokenHash string, fn func(ctx context.Context, rec Record) error) error {
	tokenKey := s.tokenKey(purpose, tokenHash)
	subjectID, err := s.redis.Get(ctx, tokenKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := []string{s.recordKey(subjectID, purpose), tokenKey, s.claimKey(purpose, tokenHash)}
	data, err := claimLua.Run(ctx, s.redis, keys, subjectID, claimTTL.Milliseconds()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeRecord([]byte(data))
	if err != nil {
		_ = s.redis.Del(ctx, keys[2]).Err()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rec.TokenHash != tokenHash {
		_ = restoreLua.Run(ctx, s.redis, keys, subjectID, s.ttl(rec)).Err()
		return ErrNotFound
	}

	fnErr := fn(ctx, rec)
	if fnErr == nil || errors.Is(fnErr, ErrExpired) {
		if err := s.redis.Del(ctx, keys[2]).Err(); err != nil && fnErr == nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fnErr
	}

	if err := restoreLua.Run(ctx, s.redis, keys, subjectID, s.ttl(rec)).Err(); err != nil {
		return errors.Join(fnErr, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return fnErr
}
