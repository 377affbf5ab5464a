// Package password hashes passwords with Argon2id and generates random
// replacement passwords.
//
// Hashes are PHC strings, so cost parameters travel with each hash and
// [Argon2.NeedsUpgrade] can flag hashes made under an older, cheaper
// configuration for re-hashing at the next successful login.
//
// Plaintext and generated passwords are never logged or stored here.
package password
