package credVault

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/credVault/internal"
	"github.com/MrEthical07/credVault/internal/rate"
	"github.com/MrEthical07/credVault/store"
)

// InitiateRecovery describes the initiaterecovery operation and its observable behavior.
//
// InitiateRecovery may return an error when input validation, dependency calls, or security checks fail.
// InitiateRecovery does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) InitiateRecovery(ctx context.Context, email string) (*RecoveryChallenge, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Recovery.Enabled {
		return nil, ErrFeatureDisabled
	}

	normalized := store.NormalizeEmail(email)
	if err := e.checkRate(rate.ActionPasswordReset, normalized); err != nil {
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:      store.AuditWarning,
			ActorEmail: normalized,
			Action:     auditActionRecoveryRequest,
			Success:    false,
			Details:    map[string]string{"reason": "rate_limited"},
		})
		return nil, err
	}

	challenge := &RecoveryChallenge{}
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := findByEmail(snap, normalized)
		if user == nil {
			// The response is identical either way; only the audit trail
			// records that no account matched.
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				ActorEmail: normalized,
				Action:     auditActionRecoveryRequest,
				Success:    true,
				Details:    map[string]string{"matched": "false"},
			})
			return nil
		}

		token, terr := internal.NewOpaqueToken()
		if terr != nil {
			return terr
		}

		// Issuing a new token supersedes any previous unused one for the
		// email. Consumed tokens stay behind for the audit trail so a later
		// replay is still distinguishable from an unknown token. Expired
		// unused tokens for any email are dropped while the write is held.
		kept := snap.RecoveryTokens[:0]
		for _, t := range snap.RecoveryTokens {
			switch {
			case t.Used:
				kept = append(kept, t)
			case store.NormalizeEmail(t.Email) == normalized:
				// superseded
			case e.recoveryExpired(t):
				// swept
			default:
				kept = append(kept, t)
			}
		}
		snap.RecoveryTokens = append(kept, &store.RecoveryToken{
			Token:     token,
			Email:     normalized,
			CreatedAt: e.now(),
		})

		challenge.Token = token
		challenge.ExpiresAt = e.now().Add(e.config.Recovery.TTL)

		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionRecoveryRequest,
			Success:    true,
			Details:    map[string]string{"matched": "true"},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRecoveryRequested)
	return challenge, nil
}

// ValidateRecoveryToken describes the validaterecoverytoken operation and its observable behavior.
//
// ValidateRecoveryToken may return an error when input validation, dependency calls, or security checks fail.
// ValidateRecoveryToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateRecoveryToken(ctx context.Context, token string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.Recovery.Enabled {
		return "", ErrFeatureDisabled
	}

	var email string
	var opErr error
	err := e.store.View(ctx, func(snap *store.Snapshot) error {
		rec := findRecoveryToken(snap, token)
		if rec == nil {
			opErr = ErrTokenInvalidOrExpired
			return nil
		}
		if rec.Used {
			opErr = ErrReplay
			return nil
		}
		if e.recoveryExpired(rec) {
			opErr = ErrTokenInvalidOrExpired
			return nil
		}
		email = rec.Email
		return nil
	})
	if err != nil {
		return "", err
	}
	if opErr != nil {
		if errors.Is(opErr, ErrReplay) {
			e.metricInc(MetricRecoveryReplayDetected)
		} else {
			e.metricInc(MetricRecoveryRejected)
		}
		return "", opErr
	}
	return email, nil
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, token, newPw string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if !e.config.Recovery.Enabled {
		return ErrFeatureDisabled
	}

	if err := e.policy.Validate(newPw); err != nil {
		e.metricInc(MetricPasswordPolicyRejected)
		return errors.Join(ErrPasswordPolicy, err)
	}

	var affected string
	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		rec := findRecoveryToken(snap, token)
		if rec == nil {
			opErr = ErrTokenInvalidOrExpired
			return nil
		}
		if rec.Used {
			opErr = ErrReplay
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorEmail: rec.Email,
				Action:     auditActionPasswordReset,
				Success:    false,
				Details:    map[string]string{"reason": "replay"},
			})
			return nil
		}
		if e.recoveryExpired(rec) {
			opErr = ErrTokenInvalidOrExpired
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				ActorEmail: rec.Email,
				Action:     auditActionPasswordReset,
				Success:    false,
				Details:    map[string]string{"reason": "expired"},
			})
			return nil
		}

		user := findByEmail(snap, rec.Email)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}

		if e.passwordReused(newPw, user) {
			opErr = ErrPasswordReuse
			e.metricInc(MetricPasswordChangeReuseRejected)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionPasswordReset,
				Success:    false,
				Details:    map[string]string{"reason": "reuse"},
			})
			return nil
		}

		hash, herr := e.hasher.Hash(newPw)
		if herr != nil {
			return herr
		}
		e.pushPasswordHistory(user, user.PasswordHash)
		user.PasswordHash = hash
		user.FailedLoginAttempts = 0
		user.LockedUntil = time.Time{}

		rec.Used = true
		rec.UsedAt = e.now()
		affected = user.ID

		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionPasswordReset,
			Success:    true,
		})
		return nil
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		if errors.Is(opErr, ErrReplay) {
			e.metricInc(MetricRecoveryReplayDetected)
		} else if !errors.Is(opErr, ErrUserNotFound) {
			e.metricInc(MetricRecoveryRejected)
		}
		return opErr
	}

	// A reset invalidates every live session for the account.
	e.sessions.DeleteAllForUser(affected)
	e.metricInc(MetricRecoveryConsumed)
	return nil
}

// CleanupRecoveryTokens removes expired unused recovery tokens from the
// durable snapshot and reports how many were dropped. Consumed tokens are
// kept for the audit trail. The engine runs this periodically; it is exported
// so operators can force a pass after changing the recovery TTL.
func (e *Engine) CleanupRecoveryTokens(ctx context.Context) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	// Peek first so an idle system does not rewrite the blob every sweep.
	stale := 0
	err := e.store.View(ctx, func(snap *store.Snapshot) error {
		for _, t := range snap.RecoveryTokens {
			if !t.Used && e.recoveryExpired(t) {
				stale++
			}
		}
		return nil
	})
	if err != nil || stale == 0 {
		return 0, err
	}

	removed := 0
	err = e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		kept := snap.RecoveryTokens[:0]
		for _, t := range snap.RecoveryTokens {
			if !t.Used && e.recoveryExpired(t) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		snap.RecoveryTokens = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (e *Engine) recoveryExpired(rec *store.RecoveryToken) bool {
	return e.now().After(rec.CreatedAt.Add(e.config.Recovery.TTL))
}

func findRecoveryToken(snap *store.Snapshot, token string) *store.RecoveryToken {
	if token == "" {
		return nil
	}
	for _, t := range snap.RecoveryTokens {
		if t.Token == token {
			return t
		}
	}
	return nil
}
