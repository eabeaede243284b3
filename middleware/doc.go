// Package middleware exposes HTTP middleware adapters built on top of
// credVault.Engine session token validation.
//
// # Guards
//
//   - [Guard] — verifies the bearer token and the live session behind it.
//   - [RequireActive] — Guard plus an activity stamp on the session, for
//     deployments using inactivity-based expiry.
//
// Each guard reads the Authorization header, calls Engine.ValidateSessionToken,
// and injects the authenticated principal into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.ValidateSessionToken.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly (delegates to Engine).
//   - Access the encrypted store (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
