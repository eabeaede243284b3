package credVault

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/MrEthical07/credVault/internal/rate"
	"github.com/MrEthical07/credVault/store"
)

const (
	metaPendingTOTPSecret = "totp_pending_secret"
	metaLastTOTPCounter   = "totp_last_counter"
)

// ProvisionTOTP generates a second-factor seed for the account and returns
// it for authenticator enrollment. The seed stays pending, and MFA stays
// off, until [Engine.EnableMFA] confirms a code derived from it.
func (e *Engine) ProvisionTOTP(ctx context.Context, userID string) (*TOTPProvisioning, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	sealed, err := store.EncryptSecret(raw, e.store.EnvelopeKey())
	if err != nil {
		return nil, err
	}

	var provisioning *TOTPProvisioning
	var opErr error
	err = e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}
		if user.MFAEnabled {
			opErr = ErrMFAAlreadyEnabled
			return nil
		}

		if user.Metadata == nil {
			user.Metadata = map[string]string{}
		}
		user.Metadata[metaPendingTOTPSecret] = base64.StdEncoding.EncodeToString(sealed)

		provisioning = &TOTPProvisioning{
			Secret: encoded,
			URI:    e.totp.ProvisionURI(encoded, user.Email),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return provisioning, nil
}

// EnableMFA confirms the pending seed with a live code, switches the second
// factor on, and mints single-use recovery codes shown exactly once.
func (e *Engine) EnableMFA(ctx context.Context, userID, code string) (*MFAEnrollment, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(rate.ActionMFAAttempt, userID); err != nil {
		e.metricInc(MetricTOTPRateLimited)
		return nil, err
	}

	var enrollment *MFAEnrollment
	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}
		if user.MFAEnabled {
			opErr = ErrMFAAlreadyEnabled
			return nil
		}

		sealed, derr := decodePendingSecret(user)
		if derr != nil {
			opErr = derr
			return nil
		}
		secret, derr := store.DecryptSecret(sealed, e.store.EnvelopeKey())
		if derr != nil {
			return derr
		}

		ok, _, verr := e.totp.VerifyCode(secret, code, e.now())
		if verr != nil {
			return verr
		}
		if !ok {
			opErr = ErrTOTPInvalid
			e.metricInc(MetricTOTPFailure)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionMFAEnable,
				Success:    false,
				Details:    map[string]string{"reason": "code_invalid"},
			})
			return nil
		}

		plain, hashed, gerr := generateRecoveryCodes(e.config.TOTP.RecoveryCodeCount)
		if gerr != nil {
			return gerr
		}

		user.MFAEnabled = true
		user.MFASecret = sealed
		user.RecoveryCodes = hashed
		delete(user.Metadata, metaPendingTOTPSecret)
		delete(user.Metadata, metaLastTOTPCounter)

		enrollment = &MFAEnrollment{RecoveryCodes: plain}
		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionMFAEnable,
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

	e.rateLimiter.Reset(rate.ActionMFAAttempt, userID)
	e.metricInc(MetricMFAEnabled)
	return enrollment, nil
}

// DisableMFA switches the second factor off. It requires a live code so a
// hijacked session cannot silently weaken the account.
func (e *Engine) DisableMFA(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	if err := e.checkRate(rate.ActionMFAAttempt, userID); err != nil {
		e.metricInc(MetricTOTPRateLimited)
		return err
	}

	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}
		if !user.MFAEnabled {
			opErr = ErrMFANotEnabled
			return nil
		}

		secret, derr := store.DecryptSecret(user.MFASecret, e.store.EnvelopeKey())
		if derr != nil {
			return derr
		}
		ok, _, verr := e.totp.VerifyCode(secret, code, e.now())
		if verr != nil {
			return verr
		}
		if !ok {
			opErr = ErrTOTPInvalid
			e.metricInc(MetricTOTPFailure)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionMFADisable,
				Success:    false,
				Details:    map[string]string{"reason": "code_invalid"},
			})
			return nil
		}

		user.MFAEnabled = false
		user.MFASecret = nil
		user.RecoveryCodes = nil
		delete(user.Metadata, metaLastTOTPCounter)

		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionMFADisable,
			Success:    true,
		})
		return nil
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	e.metricInc(MetricMFADisabled)
	return nil
}

// VerifyTOTP completes an MFA-gated login with a live code. A code counter
// already spent on this account is rejected as a replay even inside the skew
// window.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, code string) (*AuthResult, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(rate.ActionMFAAttempt, userID); err != nil {
		e.metricInc(MetricTOTPRateLimited)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:   store.AuditWarning,
			ActorID: userID,
			Action:  auditActionMFAVerify,
			Success: false,
			Details: map[string]string{"reason": "rate_limited"},
		})
		return nil, err
	}

	var result *AuthResult
	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}
		if !user.MFAEnabled {
			opErr = ErrMFANotEnabled
			return nil
		}

		secret, derr := store.DecryptSecret(user.MFASecret, e.store.EnvelopeKey())
		if derr != nil {
			return derr
		}
		ok, counter, verr := e.totp.VerifyCode(secret, code, e.now())
		if verr != nil {
			return verr
		}
		if ok && counter <= lastTOTPCounter(user) {
			ok = false
		}
		if !ok {
			opErr = ErrTOTPInvalid
			e.metricInc(MetricTOTPFailure)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionMFAVerify,
				Success:    false,
			})
			return nil
		}

		if user.Metadata == nil {
			user.Metadata = map[string]string{}
		}
		user.Metadata[metaLastTOTPCounter] = strconv.FormatInt(counter, 10)

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
			Action:     auditActionMFAVerify,
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

	e.rateLimiter.Reset(rate.ActionMFAAttempt, userID)
	e.rateLimiter.Reset(rate.ActionLogin, store.NormalizeEmail(result.Email))
	e.metricInc(MetricTOTPSuccess)
	if err := e.establishSession(result); err != nil {
		return nil, err
	}
	return result, nil
}

// AuthenticateWithRecoveryCode completes an MFA-gated login with a single-use
// recovery code instead of a live TOTP code. The matched code is consumed.
func (e *Engine) AuthenticateWithRecoveryCode(ctx context.Context, userID, code string) (*AuthResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(rate.ActionMFAAttempt, userID); err != nil {
		e.metricInc(MetricTOTPRateLimited)
		return nil, err
	}

	var result *AuthResult
	var remaining int
	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}
		if !user.MFAEnabled {
			opErr = ErrMFANotEnabled
			return nil
		}

		idx := matchRecoveryCode(user.RecoveryCodes, code)
		if idx < 0 {
			opErr = ErrRecoveryCodeInvalid
			e.metricInc(MetricRecoveryCodeFailed)
			e.appendAudit(ctx, snap, store.AuditLogEntry{
				Level:      store.AuditWarning,
				ActorID:    user.ID,
				ActorEmail: user.Email,
				Action:     auditActionRecoveryCodeLogin,
				Success:    false,
			})
			return nil
		}

		user.RecoveryCodes = append(user.RecoveryCodes[:idx], user.RecoveryCodes[idx+1:]...)
		remaining = len(user.RecoveryCodes)

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
			Action:     auditActionRecoveryCodeLogin,
			Success:    true,
			Details:    map[string]string{"remaining_codes": strconv.Itoa(remaining)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	e.rateLimiter.Reset(rate.ActionMFAAttempt, userID)
	e.metricInc(MetricRecoveryCodeUsed)
	if err := e.establishSession(result); err != nil {
		return nil, err
	}
	return result, nil
}

// RegenerateRecoveryCodes replaces the full recovery code set. It requires a
// live TOTP code; previously issued codes stop working immediately.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(rate.ActionMFAAttempt, userID); err != nil {
		e.metricInc(MetricTOTPRateLimited)
		return nil, err
	}

	var plain []string
	var opErr error
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser(userID)
		if user == nil {
			opErr = ErrUserNotFound
			return nil
		}
		if !user.MFAEnabled {
			opErr = ErrMFANotEnabled
			return nil
		}

		secret, derr := store.DecryptSecret(user.MFASecret, e.store.EnvelopeKey())
		if derr != nil {
			return derr
		}
		ok, _, verr := e.totp.VerifyCode(secret, code, e.now())
		if verr != nil {
			return verr
		}
		if !ok {
			opErr = ErrTOTPInvalid
			e.metricInc(MetricTOTPFailure)
			return nil
		}

		fresh, hashed, gerr := generateRecoveryCodes(e.config.TOTP.RecoveryCodeCount)
		if gerr != nil {
			return gerr
		}
		user.RecoveryCodes = hashed
		plain = fresh

		e.appendAudit(ctx, snap, store.AuditLogEntry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditActionRecoveryCodeReset,
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

	e.metricInc(MetricRecoveryCodeRegenerated)
	return plain, nil
}

func decodePendingSecret(user *store.CredentialRecord) ([]byte, error) {
	encoded, ok := user.Metadata[metaPendingTOTPSecret]
	if !ok || encoded == "" {
		return nil, ErrMFANotEnabled
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMFANotEnabled
	}
	return sealed, nil
}

func lastTOTPCounter(user *store.CredentialRecord) int64 {
	raw, ok := user.Metadata[metaLastTOTPCounter]
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
