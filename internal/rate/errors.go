package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError reports a refused attempt and when the window resets.
type LimitError struct {
	UnlockAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v until %s", ErrRateLimited, e.UnlockAt.UTC().Format(time.RFC3339))
}

func (e *LimitError) Unwrap() error {
	return ErrRateLimited
}
