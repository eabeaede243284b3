package credVault

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testClock is a mutable clock shared by the engine and every component.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Store.EnvelopeKey = bytes.Repeat([]byte{0x42}, 32)
	cfg.Session.TokenSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Iterations = 10_000
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true

	// Background loops poll on wall time; park them so tests drive every
	// transition through the injected clock.
	cfg.Session.MonitorInterval = time.Hour
	cfg.RateLimit.SweepInterval = time.Hour
	cfg.Passwordless.SweepInterval = time.Hour
	cfg.Recovery.SweepInterval = time.Hour
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *testClock, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clock.Now).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, clock, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

const testPassword = "Str0ng-Passw0rd!"

func registerUser(t *testing.T, engine *Engine, email string) *CredentialRecord {
	t.Helper()

	rec, err := engine.Register(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return rec
}
