package credVault

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidEmail is an exported constant or variable used by the authentication engine.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrAccountExists is an exported constant or variable used by the authentication engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the authentication engine.
	ErrPasswordReuse = errors.New("new password matches recent password history")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrRequestNotFound is an exported constant or variable used by the authentication engine.
	ErrRequestNotFound = errors.New("passwordless request not found")
	// ErrCodeMismatch is an exported constant or variable used by the authentication engine.
	ErrCodeMismatch = errors.New("passwordless code mismatch")
	// ErrNotVerified is an exported constant or variable used by the authentication engine.
	ErrNotVerified = errors.New("passwordless request not verified")
	// ErrReplay is an exported constant or variable used by the authentication engine.
	ErrReplay = errors.New("token already consumed")
	// ErrTokenInvalidOrExpired is an exported constant or variable used by the authentication engine.
	ErrTokenInvalidOrExpired = errors.New("invalid or expired token")
	// ErrMFAAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnabled is an exported constant or variable used by the authentication engine.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrTOTPInvalid is an exported constant or variable used by the authentication engine.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrRecoveryCodeInvalid is an exported constant or variable used by the authentication engine.
	ErrRecoveryCodeInvalid = errors.New("invalid recovery code")
	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrSessionTokenInvalid = errors.New("invalid session token")
	// ErrFeatureDisabled is an exported constant or variable used by the authentication engine.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrImportInvalid is an exported constant or variable used by the authentication engine.
	ErrImportInvalid = errors.New("import payload invalid")
)

// RateLimitError reports a denied attempt together with the remaining block
// time. It matches [ErrRateLimited] under [errors.Is].
type RateLimitError struct {
	Action    string
	Remaining time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s blocked for %s", e.Action, e.Remaining.Round(time.Millisecond))
}

// Is reports whether target is [ErrRateLimited].
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
