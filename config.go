package credVault

import (
	"errors"
	"time"

	"github.com/MrEthical07/credVault/internal/rate"
)

// Config defines a public type used by credVault APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Store        StoreConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	Passwordless PasswordlessConfig
	Recovery     RecoveryConfig
	TOTP         TOTPConfig
	Session      SessionConfig
	Account      AccountConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig defines a public type used by credVault APIs.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	DataKey         string
	OpLogKey        string
	OpLogMaxEntries int
	// EnvelopeKey is the 32-byte AES key sealing the snapshot blob.
	EnvelopeKey     []byte
	MaxAuditEntries int
	// RecreateOnCorrupt selects availability over integrity: an
	// undecryptable snapshot is discarded and a fresh schema materialized
	// instead of surfacing ErrCorruptStore.
	RecreateOnCorrupt bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by credVault APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Iterations     uint32
	SaltLength     uint32
	KeyLength      uint32
	HistorySize    int
	UpgradeOnLogin bool

	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule defines a public type used by credVault APIs.
//
// RateLimitRule instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitRule struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// RateLimitConfig defines a public type used by credVault APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Login         RateLimitRule
	Registration  RateLimitRule
	PasswordReset RateLimitRule
	MFAAttempt    RateLimitRule
	APICall       RateLimitRule
	SweepInterval time.Duration
}

/*
====================================
PASSWORDLESS CONFIG
====================================
*/

// PasswordlessConfig defines a public type used by credVault APIs.
//
// PasswordlessConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordlessConfig struct {
	Enabled       bool
	TTL           time.Duration
	CodeDigits    int
	SweepInterval time.Duration
}

// RecoveryConfig defines a public type used by credVault APIs.
//
// RecoveryConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RecoveryConfig struct {
	Enabled bool
	TTL     time.Duration
	// SweepInterval paces the background pass that drops expired unused
	// tokens from the snapshot. Consumed tokens are never swept.
	SweepInterval time.Duration
}

// TOTPConfig defines a public type used by credVault APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer            string
	Digits            int
	Period            int
	Skew              int
	RecoveryCodeCount int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by credVault APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	Lifetime          time.Duration
	InactivityTimeout time.Duration
	MonitorInterval   time.Duration
	WarnThreshold     time.Duration
	TokenSecret       []byte
	TokenIssuer       string
	TokenLeeway       time.Duration
}

// AccountConfig defines a public type used by credVault APIs.
//
// AccountConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountConfig struct {
	// AutoProvision creates a record on first successful passwordless
	// completion for an unknown identifier. Off by default.
	AutoProvision    bool
	DefaultRole      Role
	LockoutThreshold int
	LockoutDuration  time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// AuditConfig defines a public type used by credVault APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// DedupWindow coalesces identical (action, actor) entries arriving
	// within it into the earlier durable entry.
	DedupWindow time.Duration
	// SuspiciousFailureThreshold flags an actor once its failures within
	// SuspiciousWindow reach this count.
	SuspiciousFailureThreshold int
	SuspiciousWindow           time.Duration
}

// MetricsConfig defines a public type used by credVault APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers must still set
// Store.EnvelopeKey and Session.TokenSecret before the config validates.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			DataKey:           "credvault:db",
			OpLogKey:          "credvault:oplog",
			OpLogMaxEntries:   200,
			MaxAuditEntries:   1000,
			RecreateOnCorrupt: false,
		},
		Password: PasswordConfig{
			Iterations:     600_000,
			SaltLength:     16,
			KeyLength:      32,
			HistorySize:    5,
			UpgradeOnLogin: true,
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSpecial: true,
		},
		RateLimit: RateLimitConfig{
			Login:         RateLimitRule{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute},
			Registration:  RateLimitRule{MaxAttempts: 3, Window: time.Hour, BlockDuration: time.Hour},
			PasswordReset: RateLimitRule{MaxAttempts: 3, Window: time.Hour, BlockDuration: time.Hour},
			MFAAttempt:    RateLimitRule{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute},
			APICall:       RateLimitRule{MaxAttempts: 100, Window: time.Minute, BlockDuration: 5 * time.Minute},
			SweepInterval: time.Minute,
		},
		Passwordless: PasswordlessConfig{
			Enabled:       true,
			TTL:           15 * time.Minute,
			CodeDigits:    6,
			SweepInterval: time.Minute,
		},
		Recovery: RecoveryConfig{
			Enabled:       true,
			TTL:           24 * time.Hour,
			SweepInterval: time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:            "credVault",
			Digits:            6,
			Period:            30,
			Skew:              1,
			RecoveryCodeCount: 10,
		},
		Session: SessionConfig{
			Lifetime:          30 * time.Minute,
			InactivityTimeout: 0,
			MonitorInterval:   time.Second,
			WarnThreshold:     time.Minute,
			TokenIssuer:       "credVault",
			TokenLeeway:       0,
		},
		Account: AccountConfig{
			AutoProvision:    false,
			DefaultRole:      RoleUser,
			LockoutThreshold: 5,
			LockoutDuration:  15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:                    false,
			BufferSize:                 1024,
			DropIfFull:                 true,
			DedupWindow:                time.Second,
			SuspiciousFailureThreshold: 4,
			SuspiciousWindow:           5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Store.EnvelopeKey = cloneBytes(cfg.Store.EnvelopeKey)
	out.Session.TokenSecret = cloneBytes(cfg.Session.TokenSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r RateLimitRule) rule() rate.Rule {
	return rate.Rule{
		MaxAttempts:   r.MaxAttempts,
		Window:        r.Window,
		BlockDuration: r.BlockDuration,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Store
	if len(c.Store.EnvelopeKey) != 32 {
		return errors.New("Store EnvelopeKey must be 32 bytes")
	}
	if c.Store.MaxAuditEntries <= 0 {
		return errors.New("Store MaxAuditEntries must be > 0")
	}
	if c.Store.OpLogMaxEntries < 0 {
		return errors.New("Store OpLogMaxEntries must be >= 0")
	}

	// Password
	if c.Password.Iterations < 10_000 {
		return errors.New("Password Iterations must be >= 10000")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("Password HistorySize must be >= 0")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Rate limits
	for _, r := range []RateLimitRule{
		c.RateLimit.Login,
		c.RateLimit.Registration,
		c.RateLimit.PasswordReset,
		c.RateLimit.MFAAttempt,
		c.RateLimit.APICall,
	} {
		if r.MaxAttempts <= 0 {
			return errors.New("RateLimit MaxAttempts must be > 0")
		}
		if r.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if r.BlockDuration <= 0 {
			return errors.New("RateLimit BlockDuration must be > 0")
		}
	}

	// Passwordless
	if c.Passwordless.Enabled {
		if c.Passwordless.TTL <= 0 {
			return errors.New("Passwordless TTL must be > 0")
		}
		if c.Passwordless.CodeDigits < 6 || c.Passwordless.CodeDigits > 10 {
			return errors.New("Passwordless CodeDigits must be between 6 and 10")
		}
	}

	// Recovery
	if c.Recovery.Enabled && c.Recovery.TTL <= 0 {
		return errors.New("Recovery TTL must be > 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if c.TOTP.RecoveryCodeCount <= 0 {
		return errors.New("TOTP RecoveryCodeCount must be > 0")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.InactivityTimeout < 0 {
		return errors.New("Session InactivityTimeout must be >= 0")
	}
	if c.Session.MonitorInterval <= 0 {
		return errors.New("Session MonitorInterval must be > 0")
	}
	if c.Session.WarnThreshold < 0 {
		return errors.New("Session WarnThreshold must be >= 0")
	}
	if len(c.Session.TokenSecret) < 32 {
		return errors.New("Session TokenSecret must be >= 32 bytes")
	}

	// Account
	if c.Account.DefaultRole != RoleUser && c.Account.DefaultRole != RoleAdmin {
		return errors.New("Account DefaultRole is invalid")
	}
	if c.Account.LockoutThreshold <= 0 {
		return errors.New("Account LockoutThreshold must be > 0")
	}
	if c.Account.LockoutDuration <= 0 {
		return errors.New("Account LockoutDuration must be > 0")
	}
	if c.Account.BootstrapAdminEmail != "" && c.Account.BootstrapAdminPassword == "" {
		return errors.New("Account BootstrapAdminPassword is required with BootstrapAdminEmail")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}
	if c.Audit.DedupWindow < 0 {
		return errors.New("Audit DedupWindow must be >= 0")
	}
	if c.Audit.SuspiciousFailureThreshold < 0 {
		return errors.New("Audit SuspiciousFailureThreshold must be >= 0")
	}
	if c.Audit.SuspiciousFailureThreshold > 0 && c.Audit.SuspiciousWindow <= 0 {
		return errors.New("Audit SuspiciousWindow must be > 0 when suspicious flagging is enabled")
	}

	return nil
}
