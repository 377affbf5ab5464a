// Package rate implements the Redis-backed failed-login limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional PEXPIRE on the first hit, in one script.
// Key prefixes:
//   - gl:  login failures per email
//   - gli: login failures per client IP
//
// Once a counter exceeds its budget every check reports a [LimitError] whose UnlockAt
// is the end of the current window.
package rate
