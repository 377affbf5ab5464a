// Package secret wraps the server-held symmetric key used for encryption and opaque
// token generation.
//
// # Primitives
//
//   - [Provider.Encrypt] / [Provider.Decrypt]: AES-256-GCM, random 12-byte nonce per call,
//     output is base64url(nonce || sealed).
//   - [Provider.Hash]: SHA-256 hex digest for non-secret fingerprints.
//   - [Provider.GenerateToken]: keyed BLAKE3 over seed || 32 random bytes.
//
// The token key is derived from the encryption key with HKDF-SHA256, so a single
// configured secret never feeds two primitives directly.
//
// # What this package must NOT do
//
//   - Hold mutable state after construction.
//   - Log keys, plaintexts, or ciphertexts.
package secret
