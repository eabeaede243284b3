// Package session tracks expiry and inactivity for already-authenticated
// principals.
//
// A [State] is ephemeral per login: it is never written to the durable
// snapshot. The [Manager] owns the live session table; the [Monitor] polls
// it on a fixed interval, raising a warning callback when remaining time
// drops below a threshold and forcing logout at zero or after the
// configured inactivity silence.
//
// # Architecture boundaries
//
// This package owns session timing only. It does NOT interpret session
// tokens, verify credentials, or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import credVault, jwt, or store (no upward imports).
//   - Persist session state.
//   - Store plaintext secrets in [State] fields.
package session
