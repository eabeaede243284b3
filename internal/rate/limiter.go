package rate

import (
	"context"
	"sync"
	"time"
)

// Action identifies a throttled operation class. Each action carries its own
// attempt budget, counting window, and block duration.
type Action string

const (
	// ActionLogin throttles credential and passwordless login attempts.
	ActionLogin Action = "login"
	// ActionRegistration throttles account creation.
	ActionRegistration Action = "registration"
	// ActionPasswordReset throttles recovery token issuance and confirmation.
	ActionPasswordReset Action = "password_reset"
	// ActionMFAAttempt throttles second-factor code verification.
	ActionMFAAttempt Action = "mfa_attempt"
	// ActionAPICall throttles generic caller-defined operations.
	ActionAPICall Action = "api_call"
)

// Rule is the budget tuple for one action.
type Rule struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Config maps actions to their rules. Actions without a rule fall back to
// Default.
type Config struct {
	Rules   map[Action]Rule
	Default Rule
}

// Result reports a limiter decision. Remaining is non-zero only on denial
// and carries the time left on the active block.
type Result struct {
	Allowed   bool
	Remaining time.Duration
}

type record struct {
	count        int
	firstAttempt time.Time
	lastAttempt  time.Time
}

// Limiter is a process-local throttle keyed by (action, identifier). Records
// live only in memory; a periodic sweep evicts entries older than
// window+block to bound memory.
type Limiter struct {
	config  Config
	horizon time.Duration
	now     func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

// New creates a [Limiter] with the given per-action rules.
func New(cfg Config) *Limiter {
	if cfg.Default.MaxAttempts <= 0 {
		cfg.Default = Rule{MaxAttempts: 10, Window: time.Minute, BlockDuration: 5 * time.Minute}
	}

	horizon := cfg.Default.Window + cfg.Default.BlockDuration
	for _, r := range cfg.Rules {
		if h := r.Window + r.BlockDuration; h > horizon {
			horizon = h
		}
	}

	return &Limiter{
		config:  cfg,
		horizon: horizon,
		now:     time.Now,
		records: map[string]*record{},
	}
}

// SetClock overrides the limiter clock. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

func (l *Limiter) rule(action Action) Rule {
	if r, ok := l.config.Rules[action]; ok && r.MaxAttempts > 0 {
		return r
	}
	return l.config.Default
}

func key(action Action, identifier string) string {
	return string(action) + ":" + identifier
}

// Check records an attempt for (action, identifier) and reports whether it
// is allowed. Once the attempt count reaches the rule cap, subsequent checks
// are denied until the block duration elapses since the last counted
// attempt; the counter then resets and the attempt is allowed.
func (l *Limiter) Check(action Action, identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rule := l.rule(action)
	k := key(action, identifier)

	rec, ok := l.records[k]
	if !ok {
		l.records[k] = &record{count: 1, firstAttempt: now, lastAttempt: now}
		return Result{Allowed: true}
	}

	if rec.count >= rule.MaxAttempts {
		blocked := rule.BlockDuration - now.Sub(rec.lastAttempt)
		if blocked > 0 {
			return Result{Allowed: false, Remaining: blocked}
		}
		// Block served; start a fresh window.
		l.records[k] = &record{count: 1, firstAttempt: now, lastAttempt: now}
		return Result{Allowed: true}
	}

	if now.Sub(rec.firstAttempt) > rule.Window {
		// Window elapsed without hitting the cap.
		l.records[k] = &record{count: 1, firstAttempt: now, lastAttempt: now}
		return Result{Allowed: true}
	}

	rec.count++
	rec.lastAttempt = now
	return Result{Allowed: true}
}

// Peek reports the current decision without counting an attempt.
func (l *Limiter) Peek(action Action, identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key(action, identifier)]
	if !ok {
		return Result{Allowed: true}
	}

	rule := l.rule(action)
	if rec.count >= rule.MaxAttempts {
		blocked := rule.BlockDuration - l.now().Sub(rec.lastAttempt)
		if blocked > 0 {
			return Result{Allowed: false, Remaining: blocked}
		}
	}
	return Result{Allowed: true}
}

// Attempts returns the counted attempts for (action, identifier).
func (l *Limiter) Attempts(action Action, identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[key(action, identifier)]; ok {
		return rec.count
	}
	return 0
}

// Reset clears the record for (action, identifier). Called after a
// successful flow completion so legitimate follow-up use starts clean.
func (l *Limiter) Reset(action Action, identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key(action, identifier))
}

// ResetAll drops every record. Used when the backing snapshot is wiped so
// the limiter cache cannot diverge from store state.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = map[string]*record{}
}

// Sweep evicts records old enough that neither the counting window nor a
// block could still apply. Safe to call with no work to do.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, rec := range l.records {
		if now.Sub(rec.lastAttempt) > l.horizon {
			delete(l.records, k)
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
