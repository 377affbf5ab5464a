package verification

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestErrorMessagesAndUnwrap(t *testing.T) {
	unlock := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		message  string
	}{
		{name: "not found", err: &Error{Kind: KindNotFound}, sentinel: ErrNotFound, message: ErrNotFound.Error()},
		{name: "expired", err: &Error{Kind: KindExpired}, sentinel: ErrExpired, message: ErrExpired.Error()},
		{name: "rate limited", err: &Error{Kind: KindRateLimited, UnlockAt: unlock}, sentinel: ErrRateLimited, message: "2030-01-02T03:04:05Z"},
		{name: "zero kind", err: &Error{}, message: "verification error: unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); !strings.Contains(got, tc.message) {
				t.Fatalf("Error() = %q, want it to contain %q", got, tc.message)
			}
			if tc.sentinel == nil {
				if tc.err.Unwrap() != nil {
					t.Fatalf("zero kind must not unwrap, got %v", tc.err.Unwrap())
				}
				return
			}
			if !errors.Is(tc.err, tc.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", tc.err, tc.sentinel)
			}
		})
	}
}
