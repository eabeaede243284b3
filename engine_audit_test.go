package credVault

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAuditDedupCoalescesIdenticalEntries(t *testing.T) {
	engine, clock, done := newTestEngine(t, testConfig())
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")
	clock.Advance(2 * time.Second)

	// Two identical failures inside the dedup window collapse into one entry.
	for i := 0; i < 2; i++ {
		if _, err := engine.Authenticate(ctx, "alice@example.com", "Wr0ng-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if got := engine.metrics.Value(MetricAuditDeduplicated); got != 1 {
		t.Fatalf("expected dedup metric 1, got %d", got)
	}

	failed := false
	entries, err := engine.QueryAuditLog(ctx, AuditFilter{Action: auditActionLogin, Success: &failed})
	if err != nil {
		t.Fatalf("QueryAuditLog failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one coalesced failure entry, got %d", len(entries))
	}

	// Outside the window the next failure lands as its own entry.
	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", "Wr0ng-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	entries, err = engine.QueryAuditLog(ctx, AuditFilter{Action: auditActionLogin, Success: &failed})
	if err != nil {
		t.Fatalf("QueryAuditLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two failure entries, got %d", len(entries))
	}
}

func TestSuspiciousActivityFlaggedOnce(t *testing.T) {
	engine, clock, done := newTestEngine(t, testConfig())
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")

	// Threshold is four recent failures; the flag fires exactly at the
	// crossing and not again for the fifth.
	for i := 0; i < 4; i++ {
		clock.Advance(2 * time.Second)
		if _, err := engine.Authenticate(ctx, "alice@example.com", "Wr0ng-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if got := engine.metrics.Value(MetricSuspiciousActivity); got != 1 {
		t.Fatalf("expected suspicious metric 1 after threshold, got %d", got)
	}

	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", "Wr0ng-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := engine.metrics.Value(MetricSuspiciousActivity); got != 1 {
		t.Fatalf("expected suspicious metric unchanged, got %d", got)
	}

	entries, err := engine.QueryAuditLog(ctx, AuditFilter{Action: auditActionSuspicious})
	if err != nil {
		t.Fatalf("QueryAuditLog failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one suspicious entry, got %d", len(entries))
	}
}

func TestQueryAuditLogFilters(t *testing.T) {
	engine, clock, done := newTestEngine(t, testConfig())
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")
	registerUser(t, engine, "bob@example.com")
	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "bob@example.com", "Wr0ng-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	entries, err := engine.QueryAuditLog(ctx, AuditFilter{ActorEmail: "Bob@Example.com"})
	if err != nil {
		t.Fatalf("QueryAuditLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected register plus failed login for bob, got %d entries", len(entries))
	}

	failed := false
	entries, err = engine.QueryAuditLog(ctx, AuditFilter{Success: &failed})
	if err != nil {
		t.Fatalf("QueryAuditLog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != auditActionLogin {
		t.Fatalf("unexpected failure entries: %+v", entries)
	}

	entries, err = engine.QueryAuditLog(ctx, AuditFilter{Limit: 1})
	if err != nil {
		t.Fatalf("QueryAuditLog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != auditActionLogin {
		t.Fatalf("expected most recent entry with Limit, got %+v", entries)
	}
}

func TestSuccessRate(t *testing.T) {
	engine, clock, done := newTestEngine(t, testConfig())
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")
	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", "Wr0ng-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	rate, err := engine.SuccessRate(ctx, auditActionLogin)
	if err != nil {
		t.Fatalf("SuccessRate failed: %v", err)
	}
	if rate != 0.5 {
		t.Fatalf("expected login success rate 0.5, got %f", rate)
	}

	rate, err = engine.SuccessRate(ctx, "no_such_action")
	if err != nil {
		t.Fatalf("SuccessRate failed: %v", err)
	}
	if rate != 0 {
		t.Fatalf("expected zero rate without matches, got %f", rate)
	}
}

func TestAuditSinkReceivesEvents(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	clock := newTestClock()
	sink := NewChannelSink(16)

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "curl/8.0")
	if _, err := engine.Register(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.Action != auditActionRegister || !event.Success {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.ActorEmail != "alice@example.com" {
			t.Fatalf("unexpected actor %q", event.ActorEmail)
		}
		// Caller context rides on the sink event, never into the snapshot.
		if event.IP != "203.0.113.9" || event.UserAgent != "curl/8.0" {
			t.Fatalf("expected caller context on event, got ip=%q ua=%q", event.IP, event.UserAgent)
		}
		if event.Sequence == 0 {
			t.Fatal("expected a stamped sequence number")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}
