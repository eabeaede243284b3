// Package jwt manages session-token issuance and verification using
// configured signing keys and strict validation semantics.
//
// Tokens are the only session artifact handed to callers: they carry the
// principal id, email, and session id, and their expiry mirrors the session
// expiry tracked by the session manager.
package jwt
