package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

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

func newTestManager(cfg Config) (*Manager, *testClock) {
	m := NewManager(cfg)
	clock := newTestClock()
	m.SetClock(clock.Now)
	return m, clock
}

func TestEstablishAndRemaining(t *testing.T) {
	m, clock := newTestManager(Config{Lifetime: 30 * time.Minute})

	s := m.Establish("sid-1", "uid-1", "alice@example.com")
	if s.SessionID != "sid-1" || s.UserID != "uid-1" {
		t.Fatalf("unexpected state: %+v", s)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Count())
	}

	remaining, err := m.Remaining("sid-1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", remaining)
	}

	clock.Advance(10 * time.Minute)
	remaining, err = m.Remaining("sid-1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 20*time.Minute {
		t.Fatalf("expected 20m, got %s", remaining)
	}

	if _, err := m.Remaining("no-such"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRemainingEvictsExpired(t *testing.T) {
	m, clock := newTestManager(Config{Lifetime: 30 * time.Minute})
	m.Establish("sid-1", "uid-1", "alice@example.com")

	clock.Advance(30 * time.Minute)
	if _, err := m.Remaining("sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session reported absent, got %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("expected eviction on touch, got %d sessions", m.Count())
	}
}

func TestExtend(t *testing.T) {
	m, clock := newTestManager(Config{Lifetime: 30 * time.Minute})
	m.Establish("sid-1", "uid-1", "alice@example.com")

	clock.Advance(20 * time.Minute)
	remaining, err := m.Extend("sid-1")
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if remaining != 30*time.Minute {
		t.Fatalf("expected full lifetime restored, got %s", remaining)
	}

	clock.Advance(30 * time.Minute)
	if _, err := m.Extend("sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session unextendable, got %v", err)
	}
}

func TestMonitorWarnsOncePerExtension(t *testing.T) {
	m, clock := newTestManager(Config{Lifetime: 30 * time.Minute})
	m.Establish("sid-1", "uid-1", "alice@example.com")

	var warnings, expirations int
	monitor := NewMonitor(m, MonitorConfig{Interval: time.Hour, WarnThreshold: time.Minute})
	monitor.OnWarning = func(*State, time.Duration) { warnings++ }
	monitor.OnExpired = func(*State) { expirations++ }

	clock.Advance(29*time.Minute + 30*time.Second)
	monitor.Poll()
	monitor.Poll()
	if warnings != 1 {
		t.Fatalf("expected one warning, got %d", warnings)
	}

	// Extension rearms the warning.
	if _, err := m.Extend("sid-1"); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	clock.Advance(29*time.Minute + 30*time.Second)
	monitor.Poll()
	if warnings != 2 {
		t.Fatalf("expected warning after extension, got %d", warnings)
	}

	clock.Advance(time.Minute)
	monitor.Poll()
	if expirations != 1 {
		t.Fatalf("expected one expiration, got %d", expirations)
	}
	if m.Count() != 0 {
		t.Fatalf("expected session removed, got %d", m.Count())
	}
}

func TestInactivityTimeout(t *testing.T) {
	m, clock := newTestManager(Config{Lifetime: time.Hour, InactivityTimeout: 10 * time.Minute})
	m.Establish("sid-1", "uid-1", "alice@example.com")

	monitor := NewMonitor(m, MonitorConfig{Interval: time.Hour})

	clock.Advance(8 * time.Minute)
	if err := m.Touch("sid-1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	clock.Advance(8 * time.Minute)
	monitor.Poll()
	if m.Count() != 1 {
		t.Fatal("expected active session kept")
	}

	clock.Advance(10 * time.Minute)
	monitor.Poll()
	if m.Count() != 0 {
		t.Fatal("expected idle session removed")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	m, _ := newTestManager(Config{Lifetime: time.Hour})
	m.Establish("s1", "alice", "alice@example.com")
	m.Establish("s2", "alice", "alice@example.com")
	m.Establish("s3", "bob", "bob@example.com")

	if n := m.DeleteAllForUser("alice"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if m.Count() != 1 {
		t.Fatalf("expected bob's session kept, got %d", m.Count())
	}
	if m.Get("s3") == nil {
		t.Fatal("expected bob's session retrievable")
	}

	m.Clear()
	if m.Count() != 0 {
		t.Fatalf("expected empty table, got %d", m.Count())
	}
}
