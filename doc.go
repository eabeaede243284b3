// Package credVault provides a credential and session security engine:
// encrypted identity storage, salted password hashing with history and
// lockout policy, passwordless and recovery token flows, TOTP second
// factors, per-action rate limiting, session expiry tracking, and an
// append-only audit log.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. There is no package-level mutable state; every cache
// (snapshot, email index, limiter records, live sessions) hangs off the
// Engine and is invalidated together when the backing snapshot is wiped or
// replaced.
package credVault
