package credVault

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/MrEthical07/credVault/internal"
	"github.com/MrEthical07/credVault/internal/rate"
	"github.com/MrEthical07/credVault/store"
	"github.com/google/uuid"
)

// StartPasswordless describes the startpasswordless operation and its observable behavior.
//
// StartPasswordless may return an error when input validation, dependency calls, or security checks fail.
// StartPasswordless does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) StartPasswordless(ctx context.Context, identifier string, method PasswordlessMethod) (*PasswordlessChallenge, error) {
	if e == nil || e.passwordless == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Passwordless.Enabled {
		return nil, ErrFeatureDisabled
	}
	if method != MethodCode && method != MethodLink {
		return nil, ErrRequestNotFound
	}

	normalized := store.NormalizeEmail(identifier)
	if !isValidEmail(normalized) {
		return nil, ErrInvalidEmail
	}

	if err := e.checkRate(rate.ActionLogin, normalized); err != nil {
		e.metricInc(MetricPasswordlessRateLimited)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:      store.AuditWarning,
			ActorEmail: normalized,
			Action:     auditActionPasswordlessStart,
			Success:    false,
			Details:    map[string]string{"reason": "rate_limited"},
		})
		return nil, err
	}

	challenge := &PasswordlessChallenge{
		RequestID: uuid.NewString(),
		Method:    method,
		ExpiresAt: e.now().Add(e.config.Passwordless.TTL),
	}

	req := &passwordlessRequest{
		ID:         challenge.RequestID,
		Identifier: normalized,
		Method:     method,
		CreatedAt:  e.now(),
		ExpiresAt:  challenge.ExpiresAt,
	}

	switch method {
	case MethodCode:
		code, err := internal.NewOTP(e.config.Passwordless.CodeDigits)
		if err != nil {
			return nil, err
		}
		challenge.Code = code
		req.SecretHash = internal.HashSecretExact(code)
	case MethodLink:
		token, err := internal.NewOpaqueToken()
		if err != nil {
			return nil, err
		}
		challenge.Token = token
		req.SecretHash = internal.HashSecretExact(token)
	}

	// A request is issued whether or not the identifier matches a record,
	// so this surface does not confirm account existence.
	e.passwordless.Put(req)
	e.metricInc(MetricPasswordlessIssued)
	e.recordAudit(ctx, store.AuditLogEntry{
		ActorEmail: normalized,
		Action:     auditActionPasswordlessStart,
		Success:    true,
		Details:    map[string]string{"method": string(method)},
	})

	return challenge, nil
}

// VerifyPasswordlessCode describes the verifypasswordlesscode operation and its observable behavior.
//
// VerifyPasswordlessCode may return an error when input validation, dependency calls, or security checks fail.
// VerifyPasswordlessCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyPasswordlessCode(ctx context.Context, requestID, code string) error {
	if e == nil || e.passwordless == nil {
		return ErrEngineNotReady
	}
	if !e.config.Passwordless.Enabled {
		return ErrFeatureDisabled
	}

	req, expired := e.passwordless.Get(requestID)
	if req == nil {
		if expired {
			e.metricInc(MetricPasswordlessExpired)
			return ErrTokenInvalidOrExpired
		}
		return ErrRequestNotFound
	}
	if req.Consumed {
		e.metricInc(MetricPasswordlessReplay)
		return ErrReplay
	}

	if err := e.checkRate(rate.ActionMFAAttempt, req.Identifier); err != nil {
		e.metricInc(MetricPasswordlessRateLimited)
		return err
	}

	if subtle.ConstantTimeCompare(req.SecretHash, internal.HashSecretExact(code)) != 1 {
		e.metricInc(MetricPasswordlessMismatch)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:      store.AuditWarning,
			ActorEmail: req.Identifier,
			Action:     auditActionPasswordlessVerify,
			Success:    false,
			Details:    map[string]string{"reason": "code_mismatch"},
		})
		return ErrCodeMismatch
	}

	e.passwordless.MarkVerified(requestID)
	e.metricInc(MetricPasswordlessVerified)
	e.recordAudit(ctx, store.AuditLogEntry{
		ActorEmail: req.Identifier,
		Action:     auditActionPasswordlessVerify,
		Success:    true,
		Details:    map[string]string{"method": string(MethodCode)},
	})
	return nil
}

// VerifyPasswordlessToken resolves a link token to its request and marks the
// request verified. It returns the request id for the completion step.
func (e *Engine) VerifyPasswordlessToken(ctx context.Context, token string) (string, error) {
	if e == nil || e.passwordless == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.Passwordless.Enabled {
		return "", ErrFeatureDisabled
	}

	req, expired := e.passwordless.FindByToken(token)
	if req == nil {
		if expired {
			e.metricInc(MetricPasswordlessExpired)
			return "", ErrTokenInvalidOrExpired
		}
		return "", ErrTokenInvalidOrExpired
	}
	if req.Consumed {
		e.metricInc(MetricPasswordlessReplay)
		return "", ErrReplay
	}

	e.passwordless.MarkVerified(req.ID)
	e.metricInc(MetricPasswordlessVerified)
	e.recordAudit(ctx, store.AuditLogEntry{
		ActorEmail: req.Identifier,
		Action:     auditActionPasswordlessVerify,
		Success:    true,
		Details:    map[string]string{"method": string(MethodLink)},
	})
	return req.ID, nil
}

// CompletePasswordless describes the completepasswordless operation and its observable behavior.
//
// CompletePasswordless may return an error when input validation, dependency calls, or security checks fail.
// CompletePasswordless does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompletePasswordless(ctx context.Context, requestID string) (*AuthResult, error) {
	if e == nil || e.passwordless == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Passwordless.Enabled {
		return nil, ErrFeatureDisabled
	}

	req, expired := e.passwordless.Get(requestID)
	if req == nil {
		if expired {
			e.metricInc(MetricPasswordlessExpired)
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, ErrRequestNotFound
	}
	if req.Consumed {
		e.metricInc(MetricPasswordlessReplay)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:      store.AuditWarning,
			ActorEmail: req.Identifier,
			Action:     auditActionPasswordlessLogin,
			Success:    false,
			Details:    map[string]string{"reason": "replay"},
		})
		return nil, ErrReplay
	}
	if !req.Verified {
		return nil, ErrNotVerified
	}

	var result *AuthResult
	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := findByEmail(snap, req.Identifier)
		if user == nil {
			if !e.config.Account.AutoProvision {
				opErr = ErrUserNotFound
				e.appendAudit(ctx, snap, store.AuditLogEntry{
					Level:      store.AuditWarning,
					ActorEmail: req.Identifier,
					Action:     auditActionPasswordlessLogin,
					Success:    false,
					Details:    map[string]string{"reason": "unknown_identifier"},
				})
				return nil
			}
			provisioned, perr := e.provisionRecord(snap, req.Identifier)
			if perr != nil {
				return perr
			}
			user = provisioned
		}

		user.FailedLoginAttempts = 0
		user.LockedUntil = time.Time{}
		user.LastLogin = e.now()
		snap.CurrentUserID = user.ID

		result = &AuthResult{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
		}
		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionPasswordlessLogin,
			Success:    true,
			Details:    map[string]string{"method": string(req.Method)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	e.passwordless.MarkConsumed(requestID)
	// A completed login starts the next cycle clean: both the login bucket
	// and the code-attempt bucket are cleared for the identifier.
	e.rateLimiter.Reset(rate.ActionLogin, req.Identifier)
	e.rateLimiter.Reset(rate.ActionMFAAttempt, req.Identifier)
	e.metricInc(MetricPasswordlessCompleted)
	if err := e.establishSession(result); err != nil {
		return nil, err
	}
	return result, nil
}

// CancelPasswordless describes the cancelpasswordless operation and its observable behavior.
//
// CancelPasswordless may return an error when input validation, dependency calls, or security checks fail.
// CancelPasswordless does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CancelPasswordless(ctx context.Context, requestID string) error {
	if e == nil || e.passwordless == nil {
		return ErrEngineNotReady
	}

	req, _ := e.passwordless.Get(requestID)
	if req == nil {
		return ErrRequestNotFound
	}

	e.passwordless.Delete(requestID)
	e.metricInc(MetricPasswordlessCancelled)
	e.recordAudit(ctx, store.AuditLogEntry{
		ActorEmail: req.Identifier,
		Action:     auditActionPasswordlessCancel,
		Success:    true,
	})
	return nil
}

// provisionRecord creates a minimal record for a passwordless-only identity.
// The password slot is filled with an unguessable placeholder so the record
// cannot be entered through the password path until one is set explicitly.
func (e *Engine) provisionRecord(snap *store.Snapshot, email string) (*store.CredentialRecord, error) {
	placeholder, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	hash, err := e.hasher.Hash(placeholder)
	if err != nil {
		return nil, err
	}

	record := &store.CredentialRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         e.config.Account.DefaultRole,
		CreatedAt:    e.now(),
	}
	snap.Users = append(snap.Users, record)
	e.metricInc(MetricAccountProvisioned)
	return record, nil
}
