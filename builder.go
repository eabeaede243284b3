package credVault

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/credVault/internal/rate"
	"github.com/MrEthical07/credVault/jwt"
	"github.com/MrEthical07/credVault/password"
	"github.com/MrEthical07/credVault/session"
	"github.com/MrEthical07/credVault/store"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by credVault APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine clock across every component. Intended for
// tests; production builds keep the wall clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.NewPBKDF2(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	policy := password.Policy{
		MinLength:      cfg.Password.MinLength,
		RequireUpper:   cfg.Password.RequireUpper,
		RequireLower:   cfg.Password.RequireLower,
		RequireDigit:   cfg.Password.RequireDigit,
		RequireSpecial: cfg.Password.RequireSpecial,
	}

	// -------- CREDENTIAL STORE --------
	var bootstrapHash string
	if cfg.Account.BootstrapAdminEmail != "" {
		bootstrapHash, err = hasher.Hash(cfg.Account.BootstrapAdminPassword)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.New(b.redis, store.Config{
		DataKey:             cfg.Store.DataKey,
		OpLogKey:            cfg.Store.OpLogKey,
		OpLogMaxEntries:     cfg.Store.OpLogMaxEntries,
		EnvelopeKey:         cfg.Store.EnvelopeKey,
		MaxAuditEntries:     cfg.Store.MaxAuditEntries,
		RecreateOnCorrupt:   cfg.Store.RecreateOnCorrupt,
		BootstrapAdminEmail: cfg.Account.BootstrapAdminEmail,
		BootstrapAdminHash:  bootstrapHash,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.Lifetime,
		SigningMethod: jwt.MethodHS256,
		Secret:        cloneBytes(cfg.Session.TokenSecret),
		Issuer:        cfg.Session.TokenIssuer,
		Leeway:        cfg.Session.TokenLeeway,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(session.Config{
		Lifetime:          cfg.Session.Lifetime,
		InactivityTimeout: cfg.Session.InactivityTimeout,
	})

	limiter := rate.New(rate.Config{
		Rules: map[rate.Action]rate.Rule{
			rate.ActionLogin:         cfg.RateLimit.Login.rule(),
			rate.ActionRegistration:  cfg.RateLimit.Registration.rule(),
			rate.ActionPasswordReset: cfg.RateLimit.PasswordReset.rule(),
			rate.ActionMFAAttempt:    cfg.RateLimit.MFAAttempt.rule(),
			rate.ActionAPICall:       cfg.RateLimit.APICall.rule(),
		},
		Default: cfg.RateLimit.APICall.rule(),
	})

	engine := &Engine{
		config:       cfg,
		store:        st,
		hasher:       hasher,
		policy:       policy,
		rateLimiter:  limiter,
		passwordless: newPasswordlessStore(),
		totp:         newTOTPManager(cfg.TOTP),
		jwtManager:   jm,
		sessions:     sessions,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
		now:          time.Now,
	}

	if b.clock != nil {
		engine.now = b.clock
		st.SetClock(b.clock)
		jm.SetClock(b.clock)
		limiter.SetClock(b.clock)
		sessions.SetClock(b.clock)
		engine.passwordless.SetClock(b.clock)
	}

	monitor := session.NewMonitor(sessions, session.MonitorConfig{
		Interval:      cfg.Session.MonitorInterval,
		WarnThreshold: cfg.Session.WarnThreshold,
	})
	monitor.OnWarning = engine.onSessionWarning
	monitor.OnExpired = engine.onSessionExpired
	engine.monitor = monitor

	// Materialize or validate the snapshot up front so a corrupt blob is
	// reported at build time rather than on first use.
	if _, err := st.Load(context.Background()); err != nil {
		engine.audit.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine.cancel = cancel
	go limiter.StartSweeper(ctx, cfg.RateLimit.SweepInterval)
	if cfg.Passwordless.Enabled {
		go engine.passwordlessSweeper(ctx, cfg.Passwordless.SweepInterval)
	}
	if cfg.Recovery.Enabled {
		go engine.recoverySweeper(ctx, cfg.Recovery.SweepInterval)
	}
	monitor.Start()

	b.built = true

	return engine, nil
}
