// Package password implements password hashing, verification, and policy
// checks with PBKDF2-SHA256 defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$pbkdf2-sha256$i=<iterations>$<salt>$<hash>
//
// Every call to [PBKDF2.Hash] draws an independent random salt, so hashing
// the same password twice yields two different strings that both verify.
// [PBKDF2.NeedsUpgrade] reports true when the stored hash was produced with
// fewer iterations than the active configuration, so callers can re-hash on
// the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing, verification, and the character-class policy.
// Reuse history and lockout bookkeeping are enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other credVault package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
