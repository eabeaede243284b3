package credVault

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/credVault/internal/rate"
	"github.com/MrEthical07/credVault/store"
	"github.com/google/uuid"
)

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Authenticate(ctx context.Context, email, pw string) (*AuthResult, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	started := e.now()
	defer func() {
		e.metricObserve(MetricAuthenticateLatency, e.now().Sub(started))
	}()

	normalized := store.NormalizeEmail(email)
	if err := e.checkRate(rate.ActionLogin, normalized); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:      store.AuditWarning,
			ActorEmail: normalized,
			Action:     auditActionLogin,
			Success:    false,
			Details:    map[string]string{"reason": "rate_limited"},
		})
		return nil, err
	}

	var result *AuthResult
	var opErr error
	// Failure bookkeeping (attempt counters, lockout, audit) must persist,
	// so the business error is carried out of the mutation rather than
	// returned from it.
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := findByEmail(snap, normalized)
		if user == nil {
			opErr = ErrInvalidCredentials
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorEmail: normalized,
				Action:     auditActionLogin,
				Success:    false,
				Details:    map[string]string{"reason": "unknown_identifier"},
			})
			return nil
		}

		now := e.now()
		if now.Before(user.LockedUntil) {
			opErr = ErrAccountLocked
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionLogin,
				Success:    false,
				Details:    map[string]string{"reason": "locked"},
			})
			return nil
		}

		ok, verr := e.hasher.Verify(pw, user.PasswordHash)
		if verr != nil || !ok {
			opErr = ErrInvalidCredentials
			user.FailedLoginAttempts++
			details := map[string]string{"reason": "bad_password"}
			if user.FailedLoginAttempts >= e.config.Account.LockoutThreshold {
				user.LockedUntil = now.Add(e.config.Account.LockoutDuration)
				user.FailedLoginAttempts = 0
				details["lockout"] = "applied"
				e.metricInc(MetricAccountLocked)
			}
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionLogin,
				Success:    false,
				Details:    details,
			})
			return nil
		}

		if user.MFAEnabled {
			result = &AuthResult{
				UserID:      user.ID,
				Email:       user.Email,
				Role:        user.Role,
				MFARequired: true,
			}
			// Password stage passed; the audit entry lands when the
			// second factor completes.
			return nil
		}

		upgraded := false
		if e.config.Password.UpgradeOnLogin {
			if needs, _ := e.hasher.NeedsUpgrade(user.PasswordHash); needs {
				if rehash, herr := e.hasher.Hash(pw); herr == nil {
					user.PasswordHash = rehash
					upgraded = true
					e.metricInc(MetricPasswordUpgraded)
				}
			}
		}

		user.FailedLoginAttempts = 0
		user.LockedUntil = time.Time{}
		user.LastLogin = now
		snap.CurrentUserID = user.ID

		result = &AuthResult{
			UserID:           user.ID,
			Email:            user.Email,
			Role:             user.Role,
			PasswordUpgraded: upgraded,
		}
		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionLogin,
			Success:    true,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		e.metricInc(MetricLoginFailure)
		return nil, opErr
	}

	if result.MFARequired {
		return result, nil
	}

	e.rateLimiter.Reset(rate.ActionLogin, normalized)
	e.metricInc(MetricLoginSuccess)
	if err := e.establishSession(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, email, pw string) (*CredentialRecord, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	normalized := store.NormalizeEmail(email)
	if !isValidEmail(normalized) {
		return nil, ErrInvalidEmail
	}

	if err := e.checkRate(rate.ActionRegistration, normalized); err != nil {
		e.metricInc(MetricRegistrationRateLimited)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:      store.AuditWarning,
			ActorEmail: normalized,
			Action:     auditActionRegister,
			Success:    false,
			Details:    map[string]string{"reason": "rate_limited"},
		})
		return nil, err
	}

	if err := e.policy.Validate(pw); err != nil {
		e.metricInc(MetricPasswordPolicyRejected)
		e.recordAudit(ctx, store.AuditLogEntry{
			ActorEmail: normalized,
			Action:     auditActionRegister,
			Success:    false,
			Details:    map[string]string{"reason": "password_policy"},
		})
		return nil, errors.Join(ErrPasswordPolicy, err)
	}

	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	var created *CredentialRecord
	var opErr error
	err = e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		if findByEmail(snap, normalized) != nil {
			opErr = ErrAccountExists
			e.metricInc(MetricRegistrationDuplicate)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				ActorEmail: normalized,
				Action:     auditActionRegister,
				Success:    false,
				Details:    map[string]string{"reason": "duplicate"},
			})
			return nil
		}

		record := &store.CredentialRecord{
			ID:           uuid.NewString(),
			Email:        normalized,
			PasswordHash: hash,
			Role:         e.config.Account.DefaultRole,
			CreatedAt:    e.now(),
		}
		snap.Users = append(snap.Users, record)
		created = record

		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    record.ID,
			ActorEmail: record.Email,
			Action:     auditActionRegister,
			Success:    true,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	e.metricInc(MetricRegistrationSuccess)
	out := *created
	return &out, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPw, newPw string) error {
	if e == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	if err := e.policy.Validate(newPw); err != nil {
		e.metricInc(MetricPasswordPolicyRejected)
		return errors.Join(ErrPasswordPolicy, err)
	}

	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}

		ok, verr := e.hasher.Verify(oldPw, user.PasswordHash)
		if verr != nil || !ok {
			opErr = ErrInvalidCredentials
			e.metricInc(MetricPasswordChangeInvalidOld)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionPasswordChange,
				Success:    false,
				Details:    map[string]string{"reason": "invalid_current"},
			})
			return nil
		}

		if reused := e.passwordReused(newPw, user); reused {
			opErr = ErrPasswordReuse
			e.metricInc(MetricPasswordChangeReuseRejected)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionPasswordChange,
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

		e.metricInc(MetricPasswordChangeSuccess)
		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionPasswordChange,
			Success:    true,
		})
		return nil
	})
	if err != nil {
		return err
	}
	return opErr
}

// passwordReused reports whether pw matches the current hash or any entry in
// the retained history.
func (e *Engine) passwordReused(pw string, user *store.CredentialRecord) bool {
	if ok, err := e.hasher.Verify(pw, user.PasswordHash); err == nil && ok {
		return true
	}
	for _, old := range user.PasswordHistory {
		if ok, err := e.hasher.Verify(pw, old); err == nil && ok {
			return true
		}
	}
	return false
}

// pushPasswordHistory prepends the retired hash, newest first, capped at the
// configured history size.
func (e *Engine) pushPasswordHistory(user *store.CredentialRecord, retired string) {
	size := e.config.Password.HistorySize
	if size <= 0 {
		return
	}
	user.PasswordHistory = append([]string{retired}, user.PasswordHistory...)
	if len(user.PasswordHistory) > size {
		user.PasswordHistory = user.PasswordHistory[:size]
	}
}

// establishSession attaches a live session and signed token to the result.
func (e *Engine) establishSession(result *AuthResult) error {
	sid := uuid.NewString()
	state := e.sessions.Establish(sid, result.UserID, result.Email)

	token, err := e.jwtManager.Create(result.UserID, result.Email, sid, e.now())
	if err != nil {
		e.sessions.Delete(sid)
		return err
	}

	result.SessionID = sid
	result.SessionToken = token
	result.ExpiresAt = state.ExpiresAt
	e.metricInc(MetricSessionCreated)
	return nil
}

func findByEmail(snap *store.Snapshot, normalized string) *store.CredentialRecord {
	for _, u := range snap.Users {
		if store.NormalizeEmail(u.Email) == normalized {
			return u
		}
	}
	return nil
}

func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}
