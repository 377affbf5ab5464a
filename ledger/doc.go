// Package ledger records issued refresh tokens and backs the rotate/revoke protocol.
//
// Records are keyed by the SHA-256 fingerprint of the refresh token value, so a leaked
// store never yields usable tokens. Each record is single use: [Store.Consume] removes
// the record atomically and only the caller that removed it may mint a new pair.
//
// # Implementations
//
//   - [RedisStore]: record key crt:t:<hash> with a per-subject index set crt:s:<subject>.
//     Consume is a single Lua GET+DEL.
//   - [SQLStore]: refresh_tokens table; Consume is DELETE ... RETURNING, which serializes
//     concurrent consumers on the row.
//
// # What this package must NOT do
//
//   - Sign or verify tokens (see package jwt).
//   - Retry storage failures. They surface as [ErrUnavailable].
package ledger
