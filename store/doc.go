// Package store implements the encrypted record store: durable, namespaced
// persistence for credential, audit, and recovery-token data behind a
// compress-then-encrypt envelope, with an in-memory email index rebuilt on
// every load and save.
package store
