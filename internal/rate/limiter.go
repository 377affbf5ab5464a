package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Window           time.Duration
	Prefix           string
}

const defaultPrefix = "gl"

// KEYS[1] = counter key
// ARGV[1] = window ms
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`

var incrementLua = redis.NewScript(incrementScript)

// Limiter enforces per-email and per-IP failed login budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

func (l *Limiter) emailKey(email string) string {
	return l.config.Prefix + ":" + strings.ToLower(email)
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + "i:" + ip
}

func (l *Limiter) keys(email, ip string) []string {
	keys := []string{l.emailKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

// Check returns a *LimitError when email or ip has exhausted its budget.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		if err := l.checkCounter(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Fail records a failed attempt. It returns a *LimitError when this attempt used up
// the budget.
func (l *Limiter) Fail(ctx context.Context, email, ip string) error {
	var limited *LimitError
	for _, key := range l.keys(email, ip) {
		count, ttl, err := l.increment(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			unlock := l.now().Add(ttl)
			if limited == nil || unlock.After(limited.UnlockAt) {
				limited = &LimitError{UnlockAt: unlock}
			}
		}
	}
	if limited != nil {
		return limited
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, l.keys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for email.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) Attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.emailKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < int64(l.config.MaxAttempts) {
		return nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		ttl = l.config.Window
	}
	return &LimitError{UnlockAt: l.now().Add(ttl)}
}

func (l *Limiter) increment(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := incrementLua.Run(ctx, l.redis, []string{key}, l.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = l.config.Window
	}
	return res[0], ttl, nil
}
