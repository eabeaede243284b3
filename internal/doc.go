// Package internal holds module-private helpers for secret generation:
// numeric one-time codes, opaque link tokens, and human-formatted recovery
// codes, plus the SHA-256 digests stored in their place.
package internal
