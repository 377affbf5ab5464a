// Package jwt issues and verifies the signed credentials handled by goCreds:
// access tokens, refresh tokens, and short-lived temporary tokens.
//
// # Key separation
//
// Access and refresh tokens are signed with distinct key material. A leaked refresh key
// cannot mint access tokens and the reverse. Temporary tokens are signed with the access
// key but carry their own class (typ claim), so they are rejected wherever an access
// token is expected.
//
// # Lifetimes
//
// Lifetimes are configured as durations; [ParseLifetime] accepts the value+unit notation
// used in deployment configuration ("15 minutes", "7d", "15m"). Remember-me pairs use a
// fixed long refresh lifetime regardless of the configured default.
//
// # What this package must NOT do
//
//   - Persist anything: refresh-token bookkeeping belongs to the ledger package.
//   - Distinguish expired tokens from forged ones in returned errors.
package jwt
