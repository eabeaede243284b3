package credVault

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidatesWithSecrets(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected test config valid, got %v", err)
	}

	// The exported defaults alone must not validate; secrets are mandatory.
	bare := DefaultConfig()
	if err := bare.Validate(); err == nil {
		t.Fatal("expected defaults without secrets rejected")
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"short envelope key", func(c *Config) { c.Store.EnvelopeKey = []byte("short") }, "EnvelopeKey"},
		{"short token secret", func(c *Config) { c.Session.TokenSecret = []byte("short") }, "TokenSecret"},
		{"weak iterations", func(c *Config) { c.Password.Iterations = 9_999 }, "Iterations"},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }, "SaltLength"},
		{"zero login attempts", func(c *Config) { c.RateLimit.Login.MaxAttempts = 0 }, "MaxAttempts"},
		{"zero login window", func(c *Config) { c.RateLimit.Login.Window = 0 }, "Window"},
		{"passwordless short code", func(c *Config) { c.Passwordless.CodeDigits = 4 }, "CodeDigits"},
		{"recovery zero ttl", func(c *Config) { c.Recovery.TTL = 0 }, "Recovery TTL"},
		{"totp odd digits", func(c *Config) { c.TOTP.Digits = 7 }, "Digits"},
		{"totp wide skew", func(c *Config) { c.TOTP.Skew = 3 }, "Skew"},
		{"totp missing issuer", func(c *Config) { c.TOTP.Issuer = "" }, "Issuer"},
		{"zero session lifetime", func(c *Config) { c.Session.Lifetime = 0 }, "Lifetime"},
		{"zero lockout threshold", func(c *Config) { c.Account.LockoutThreshold = 0 }, "LockoutThreshold"},
		{"bad default role", func(c *Config) { c.Account.DefaultRole = "superuser" }, "DefaultRole"},
		{"bootstrap admin without password", func(c *Config) { c.Account.BootstrapAdminEmail = "root@example.com" }, "BootstrapAdminPassword"},
		{"audit zero buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "BufferSize"},
	}

	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantSub) {
			t.Errorf("%s: expected error mentioning %q, got %v", tc.name, tc.wantSub, err)
		}
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	cfg.Store.EnvelopeKey[0] ^= 0xff
	cfg.Session.TokenSecret[0] ^= 0xff

	if clone.Store.EnvelopeKey[0] == cfg.Store.EnvelopeKey[0] {
		t.Fatal("expected envelope key copied, not shared")
	}
	if clone.Session.TokenSecret[0] == cfg.Session.TokenSecret[0] {
		t.Fatal("expected token secret copied, not shared")
	}
}
