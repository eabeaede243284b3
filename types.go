package credVault

import (
	"time"

	"github.com/MrEthical07/credVault/store"
)

// Role defines a public type used by credVault APIs.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role = store.Role

const (
	// RoleUser is an exported constant or variable used by the authentication engine.
	RoleUser = store.RoleUser
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin = store.RoleAdmin
)

// PasswordlessMethod defines a public type used by credVault APIs.
//
// PasswordlessMethod instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordlessMethod string

const (
	// MethodCode is an exported constant or variable used by the authentication engine.
	MethodCode PasswordlessMethod = "code"
	// MethodLink is an exported constant or variable used by the authentication engine.
	MethodLink PasswordlessMethod = "link"
)

// AuthResult is the successful outcome of an authentication flow. The
// SessionToken is a signed bearer token for the established session.
type AuthResult struct {
	UserID       string
	Email        string
	Role         Role
	SessionID    string
	SessionToken string
	ExpiresAt    time.Time

	// MFARequired is set instead of a session when the account has a
	// second factor enabled and none was presented yet.
	MFARequired bool
	// PasswordUpgraded reports that the stored hash was transparently
	// re-derived at stronger parameters during this login.
	PasswordUpgraded bool
}

// PasswordlessChallenge is the caller-deliverable half of a passwordless
// request. The engine never delivers codes or links itself; the caller owns
// the channel (mail, SMS, display).
type PasswordlessChallenge struct {
	RequestID string
	Method    PasswordlessMethod
	// Code is set for the code method, Token for the link method. Both
	// are returned exactly once and stored only as hashes.
	Code      string
	Token     string
	ExpiresAt time.Time
}

// RecoveryChallenge is the caller-deliverable half of an account recovery
// request. Token is empty when the identifier did not match an account; the
// caller should respond identically either way.
type RecoveryChallenge struct {
	Token     string
	ExpiresAt time.Time
}

// TOTPProvisioning carries a freshly generated second-factor seed. Secret is
// the base32 form for manual entry and URI the otpauth form for QR encoding.
// The seed is pending until confirmed through [Engine.EnableMFA].
type TOTPProvisioning struct {
	Secret string
	URI    string
}

// MFAEnrollment is the outcome of confirming a second factor. RecoveryCodes
// are shown exactly once; only hashes are retained.
type MFAEnrollment struct {
	RecoveryCodes []string
}

// AuditFilter selects audit entries for [Engine.QueryAuditLog]. Zero fields
// match everything.
type AuditFilter struct {
	Action     string
	ActorID    string
	ActorEmail string
	Level      store.AuditLevel
	Success    *bool
	From       time.Time
	To         time.Time
	Limit      int
}

// AuditLogEntry defines a public type used by credVault APIs.
//
// AuditLogEntry instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditLogEntry = store.AuditLogEntry

// CredentialRecord defines a public type used by credVault APIs.
//
// CredentialRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CredentialRecord = store.CredentialRecord
