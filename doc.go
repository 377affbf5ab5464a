// Package goCreds is a credential lifecycle engine: it issues and rotates signed
// access/refresh token pairs, keeps a single-use ledger of outstanding refresh tokens,
// and runs purpose-scoped verification tokens (email confirmation, password reset)
// through an attempt-throttled state machine.
//
// An [Engine] is assembled once through [Builder.Build] and is safe for concurrent use.
// User records and out-of-band delivery stay with the caller, behind [UserProvider] and
// [Notifier].
//
// # Storage
//
// Refresh tokens and verification records live either in Redis ([Builder.WithRedis]) or
// in a SQL database ([Builder.WithSQL], Postgres or SQLite, schema applied by
// storage.Migrate). The login rate limiter always uses Redis.
//
// # Error contract
//
// Callers see a small set of sentinels. Login failures are uniform
// ([ErrAuthenticationFailed]) whether the account exists or not. Refresh failures collapse
// to [ErrRefreshInvalid]. Only [RateLimitError] carries data the caller can act on.
package goCreds
