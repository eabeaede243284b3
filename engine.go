package credVault

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MrEthical07/credVault/internal/rate"
	"github.com/MrEthical07/credVault/jwt"
	"github.com/MrEthical07/credVault/password"
	"github.com/MrEthical07/credVault/session"
	"github.com/MrEthical07/credVault/store"
)

// Engine defines a public type used by credVault APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	store        *store.Store
	hasher       *password.PBKDF2
	policy       password.Policy
	rateLimiter  *rate.Limiter
	passwordless *passwordlessStore
	totp         *totpManager
	jwtManager   *jwt.Manager
	sessions     *session.Manager
	monitor      *session.Monitor
	audit        *auditDispatcher
	metrics      *Metrics
	now          func() time.Time

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.monitor != nil {
			e.monitor.Stop()
		}
		if e.cancel != nil {
			e.cancel()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// Store exposes the backing credential store for advanced integrations and
// tests.
func (e *Engine) Store() *store.Store {
	if e == nil {
		return nil
	}
	return e.store
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// CheckRateLimit records an attempt for (action, identifier) and reports the
// decision. Allowed attempts return nil; denied attempts return a
// [*RateLimitError] carrying the remaining block time.
func (e *Engine) CheckRateLimit(action string, identifier string) error {
	if e == nil || e.rateLimiter == nil {
		return ErrEngineNotReady
	}
	return e.checkRate(rate.Action(action), identifier)
}

func (e *Engine) checkRate(action rate.Action, identifier string) error {
	res := e.rateLimiter.Check(action, identifier)
	if res.Allowed {
		return nil
	}
	return &RateLimitError{Action: string(action), Remaining: res.Remaining}
}

func (e *Engine) passwordlessSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := e.passwordless.Sweep(); n > 0 {
				e.metricInc(MetricPasswordlessExpired)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) recoverySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.CleanupRecoveryTokens(ctx); err != nil {
				log.Print("credVault: recovery token sweep failed: ", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) onSessionWarning(s *session.State, remaining time.Duration) {
	e.metricInc(MetricSessionWarning)
	e.emitAudit(context.Background(), AuditEvent{
		Action:     auditActionSessionExpire,
		Level:      store.AuditWarning,
		ActorID:    s.UserID,
		ActorEmail: s.Email,
		SessionID:  s.SessionID,
		Success:    true,
		Metadata: map[string]string{
			"phase":     "warning",
			"remaining": remaining.String(),
		},
	})
}

func (e *Engine) onSessionExpired(s *session.State) {
	e.metricInc(MetricSessionExpired)
	e.recordAudit(context.Background(), store.AuditLogEntry{
		Level:      store.AuditInfo,
		ActorID:    s.UserID,
		ActorEmail: s.Email,
		Action:     auditActionSessionExpire,
		Success:    true,
	})
}
