// Package verification implements single-use verification tokens (email confirmation,
// password reset) with attempt-based throttling.
//
// A [Machine] owns the lifecycle of one record per (subject, purpose):
//
//	NONE -> PENDING -> CONSUMED
//	           |  ^
//	           |  +-- renewal (re-request while live)
//	           v
//	        EXPIRED
//
// Re-requests count as attempts. After [Policy.FreeAttempts] requests, further requests
// inside [Policy.Cooldown] of the last one are refused with a [KindRateLimited] error that
// carries the unlock time.
//
// Token values are only ever returned to the caller that minted them. Stores persist the
// token's SHA-256 fingerprint.
package verification
