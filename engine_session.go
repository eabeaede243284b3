package credVault

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/credVault/store"
)

// SessionRemaining describes the sessionremaining operation and its observable behavior.
//
// SessionRemaining may return an error when input validation, dependency calls, or security checks fail.
// SessionRemaining does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SessionRemaining(sessionID string) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	remaining, err := e.sessions.Remaining(sessionID)
	if err != nil {
		return 0, ErrSessionNotFound
	}
	return remaining, nil
}

// ExtendSession pushes the session expiry forward by the configured lifetime
// and returns the new remaining time.
func (e *Engine) ExtendSession(ctx context.Context, sessionID string) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	remaining, err := e.sessions.Extend(sessionID)
	if err != nil {
		return 0, ErrSessionNotFound
	}

	state := e.sessions.Get(sessionID)
	e.metricInc(MetricSessionExtended)
	if state != nil {
		e.recordAudit(ctx, store.AuditLogEntry{
			ActorID:    state.UserID,
			ActorEmail: state.Email,
			Action:     auditActionSessionExtend,
			Success:    true,
		})
	}
	return remaining, nil
}

// TouchSession stamps activity on the session for the inactivity variant of
// expiry. Unknown sessions return [ErrSessionNotFound].
func (e *Engine) TouchSession(sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Touch(sessionID); err != nil {
		return ErrSessionNotFound
	}
	return nil
}

// ValidateSessionToken verifies a signed session token and confirms the
// session it names is still live. It returns the authenticated principal.
func (e *Engine) ValidateSessionToken(tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr)
	if err != nil {
		return nil, errors.Join(ErrSessionTokenInvalid, err)
	}

	state := e.sessions.Get(claims.SID)
	if state == nil || state.UserID != claims.UID {
		return nil, ErrSessionNotFound
	}
	if state.Remaining(e.now()) == 0 {
		e.sessions.Delete(claims.SID)
		return nil, ErrSessionNotFound
	}

	return &AuthResult{
		UserID:       claims.UID,
		Email:        claims.Email,
		SessionID:    claims.SID,
		SessionToken: tokenStr,
		ExpiresAt:    state.ExpiresAt,
	}, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	state := e.sessions.Get(sessionID)
	if state == nil {
		return ErrSessionNotFound
	}
	e.sessions.Delete(sessionID)
	e.metricInc(MetricLogout)

	var entry = store.AuditLogEntry{
		ActorID:    state.UserID,
		ActorEmail: state.Email,
		Action:     auditActionLogout,
		Success:    true,
	}
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		if snap.CurrentUserID == state.UserID {
			snap.CurrentUserID = ""
		}
		e.appendAudit(ctx, snap, entry)
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	if e == nil || e.sessions == nil {
		return 0
	}
	return e.sessions.Count()
}
