package store

import "errors"

var (
	// ErrCorrupt is returned when the persisted envelope cannot be
	// decrypted, decompressed, or parsed back into a snapshot.
	ErrCorrupt = errors.New("store blob corrupt")
	// ErrUnavailable is returned when the Redis backend cannot be reached.
	ErrUnavailable = errors.New("store backend unavailable")
	// ErrRecordNotFound is returned when no credential record matches the key.
	ErrRecordNotFound = errors.New("credential record not found")
	// ErrDuplicateEmail is returned when a second record claims an email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidKey is returned when the envelope key has the wrong length.
	ErrInvalidKey = errors.New("envelope key must be 32 bytes")
)
