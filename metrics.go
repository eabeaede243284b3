package credVault

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by credVault APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the authentication engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the authentication engine.
	MetricLoginFailure
	// MetricLoginRateLimited is an exported constant or variable used by the authentication engine.
	MetricLoginRateLimited
	// MetricAccountLocked is an exported constant or variable used by the authentication engine.
	MetricAccountLocked
	// MetricAccountProvisioned is an exported constant or variable used by the authentication engine.
	MetricAccountProvisioned
	// MetricRegistrationSuccess is an exported constant or variable used by the authentication engine.
	MetricRegistrationSuccess
	// MetricRegistrationDuplicate is an exported constant or variable used by the authentication engine.
	MetricRegistrationDuplicate
	// MetricRegistrationRateLimited is an exported constant or variable used by the authentication engine.
	MetricRegistrationRateLimited
	// MetricPasswordChangeSuccess is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeInvalidOld
	// MetricPasswordChangeReuseRejected is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeReuseRejected
	// MetricPasswordPolicyRejected is an exported constant or variable used by the authentication engine.
	MetricPasswordPolicyRejected
	// MetricPasswordUpgraded is an exported constant or variable used by the authentication engine.
	MetricPasswordUpgraded
	// MetricPasswordlessIssued is an exported constant or variable used by the authentication engine.
	MetricPasswordlessIssued
	// MetricPasswordlessVerified is an exported constant or variable used by the authentication engine.
	MetricPasswordlessVerified
	// MetricPasswordlessCompleted is an exported constant or variable used by the authentication engine.
	MetricPasswordlessCompleted
	// MetricPasswordlessMismatch is an exported constant or variable used by the authentication engine.
	MetricPasswordlessMismatch
	// MetricPasswordlessExpired is an exported constant or variable used by the authentication engine.
	MetricPasswordlessExpired
	// MetricPasswordlessCancelled is an exported constant or variable used by the authentication engine.
	MetricPasswordlessCancelled
	// MetricPasswordlessReplay is an exported constant or variable used by the authentication engine.
	MetricPasswordlessReplay
	// MetricPasswordlessRateLimited is an exported constant or variable used by the authentication engine.
	MetricPasswordlessRateLimited
	// MetricRecoveryRequested is an exported constant or variable used by the authentication engine.
	MetricRecoveryRequested
	// MetricRecoveryConsumed is an exported constant or variable used by the authentication engine.
	MetricRecoveryConsumed
	// MetricRecoveryRejected is an exported constant or variable used by the authentication engine.
	MetricRecoveryRejected
	// MetricRecoveryReplayDetected is an exported constant or variable used by the authentication engine.
	MetricRecoveryReplayDetected
	// MetricMFAEnabled is an exported constant or variable used by the authentication engine.
	MetricMFAEnabled
	// MetricMFADisabled is an exported constant or variable used by the authentication engine.
	MetricMFADisabled
	// MetricTOTPSuccess is an exported constant or variable used by the authentication engine.
	MetricTOTPSuccess
	// MetricTOTPFailure is an exported constant or variable used by the authentication engine.
	MetricTOTPFailure
	// MetricTOTPRateLimited is an exported constant or variable used by the authentication engine.
	MetricTOTPRateLimited
	// MetricRecoveryCodeUsed is an exported constant or variable used by the authentication engine.
	MetricRecoveryCodeUsed
	// MetricRecoveryCodeFailed is an exported constant or variable used by the authentication engine.
	MetricRecoveryCodeFailed
	// MetricRecoveryCodeRegenerated is an exported constant or variable used by the authentication engine.
	MetricRecoveryCodeRegenerated
	// MetricSessionCreated is an exported constant or variable used by the authentication engine.
	MetricSessionCreated
	// MetricSessionExtended is an exported constant or variable used by the authentication engine.
	MetricSessionExtended
	// MetricSessionExpired is an exported constant or variable used by the authentication engine.
	MetricSessionExpired
	// MetricSessionWarning is an exported constant or variable used by the authentication engine.
	MetricSessionWarning
	// MetricLogout is an exported constant or variable used by the authentication engine.
	MetricLogout
	// MetricStoreSave is an exported constant or variable used by the authentication engine.
	MetricStoreSave
	// MetricStoreCorruption is an exported constant or variable used by the authentication engine.
	MetricStoreCorruption
	// MetricStoreRepair is an exported constant or variable used by the authentication engine.
	MetricStoreRepair
	// MetricSuspiciousActivity is an exported constant or variable used by the authentication engine.
	MetricSuspiciousActivity
	// MetricAuditDeduplicated is an exported constant or variable used by the authentication engine.
	MetricAuditDeduplicated
	// MetricAuthenticateLatency is an exported constant or variable used by the authentication engine.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by credVault APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by credVault APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics may return an error when input validation, dependency calls, or security checks fail.
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled may return an error when input validation, dependency calls, or security checks fail.
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled describes the latencyenabled operation and its observable behavior.
//
// LatencyEnabled may return an error when input validation, dependency calls, or security checks fail.
// LatencyEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc may return an error when input validation, dependency calls, or security checks fail.
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe describes the observe operation and its observable behavior.
//
// Observe may return an error when input validation, dependency calls, or security checks fail.
// Observe does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value may return an error when input validation, dependency calls, or security checks fail.
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot may return an error when input validation, dependency calls, or security checks fail.
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
