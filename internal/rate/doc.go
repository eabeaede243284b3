// Package rate implements the process-local sliding-window rate limiter used
// by security-sensitive authentication workflows.
//
// # Window semantics
//
// Each (action, identifier) pair owns one record with an attempt count, the
// first-attempt time, and the last-attempt time. Two durations govern a rule:
// the counting window (attempts reset if the window elapses without hitting
// the cap) and the block duration (once the cap is hit, all attempts are
// refused until it elapses).
//
// Records are deliberately not persisted; the limiter cache is invalidated
// together with the backing snapshot on wipe or import.
//
// # What this package must NOT do
//
//   - Implement flow-specific policies (those live on the Engine).
//   - Be imported outside the credVault module.
package rate
