package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testEnvelopeKey = bytes.Repeat([]byte{0x42}, 32)

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

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func newTestStore(t *testing.T, rdb redis.UniversalClient, cfg Config) *Store {
	t.Helper()

	if cfg.EnvelopeKey == nil {
		cfg.EnvelopeKey = testEnvelopeKey
	}
	s, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.SetClock(newTestClock().Now)
	return s
}

func TestNewRejectsBadKey(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New(rdb, Config{EnvelopeKey: []byte("short")}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLoadMaterializesFreshSchema(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{
		BootstrapAdminEmail: "Admin@Example.com",
		BootstrapAdminHash:  "$pbkdf2-sha256$i=10000$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
	})
	ctx := context.Background()

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected schema version %d", snap.SchemaVersion)
	}
	if len(snap.Users) != 1 {
		t.Fatalf("expected bootstrap admin, got %d users", len(snap.Users))
	}
	admin := snap.Users[0]
	if admin.Email != "admin@example.com" || admin.Role != RoleAdmin {
		t.Fatalf("unexpected bootstrap record: %+v", admin)
	}

	lines, err := s.OpLog(ctx)
	if err != nil {
		t.Fatalf("OpLog failed: %v", err)
	}
	if len(lines) == 0 || !strings.Contains(lines[0], "schema recreated: empty") {
		t.Fatalf("expected recreate entry in oplog, got %v", lines)
	}
}

func TestMutatePersistsAcrossInstances(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	first := newTestStore(t, rdb, Config{})
	err := first.Mutate(ctx, func(snap *Snapshot) error {
		snap.Users = append(snap.Users, &CredentialRecord{
			ID:           "uid-1",
			Email:        "alice@example.com",
			PasswordHash: "hash",
			Role:         RoleUser,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	// A second store over the same key sees the persisted blob.
	second := newTestStore(t, rdb, Config{})
	rec, err := second.FindByEmail(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if rec.ID != "uid-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestMutateErrorSkipsSave(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	first := newTestStore(t, rdb, Config{})
	if _, err := first.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	boom := errors.New("boom")
	err := first.Mutate(ctx, func(snap *Snapshot) error {
		snap.Users = append(snap.Users, &CredentialRecord{ID: "uid-1", Email: "a@example.com", PasswordHash: "h"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error surfaced, got %v", err)
	}

	second := newTestStore(t, rdb, Config{})
	if _, err := second.FindByEmail(ctx, "a@example.com"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestLoadCorruptBlob(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	mr.Set("credvault:db", "definitely not an envelope")

	strict := newTestStore(t, rdb, Config{})
	if _, err := strict.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	// The blob stays in place for forensics under the strict policy.
	if got, _ := mr.Get("credvault:db"); got != "definitely not an envelope" {
		t.Fatal("expected corrupt blob left untouched")
	}

	lenient := newTestStore(t, rdb, Config{RecreateOnCorrupt: true})
	snap, err := lenient.Load(ctx)
	if err != nil {
		t.Fatalf("expected recreate on corrupt, got %v", err)
	}
	if len(snap.Users) != 0 || snap.SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected recreated snapshot: %+v", snap)
	}

	lines, err := lenient.OpLog(ctx)
	if err != nil {
		t.Fatalf("OpLog failed: %v", err)
	}
	if len(lines) == 0 || !strings.Contains(lines[0], "schema recreated: corrupt") {
		t.Fatalf("expected corrupt recreate logged, got %v", lines)
	}
}

func TestWipe(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	s := newTestStore(t, rdb, Config{})
	err := s.Mutate(ctx, func(snap *Snapshot) error {
		snap.Users = append(snap.Users, &CredentialRecord{ID: "uid-1", Email: "a@example.com", PasswordHash: "h"})
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if err := s.Wipe(ctx); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}
	if mr.Exists("credvault:db") || mr.Exists("credvault:oplog") {
		t.Fatal("expected both keys deleted")
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load after wipe failed: %v", err)
	}
	if len(snap.Users) != 0 {
		t.Fatalf("expected fresh schema, got %d users", len(snap.Users))
	}
}

func TestRepairFixesInvariantViolations(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	s := newTestStore(t, rdb, Config{})
	err := s.Mutate(ctx, func(snap *Snapshot) error {
		snap.Users = append(snap.Users,
			&CredentialRecord{ID: "uid-1", Email: "a@example.com", PasswordHash: "h", Role: RoleUser},
			&CredentialRecord{ID: "uid-2", Email: "A@Example.com", PasswordHash: "h", Role: RoleUser},
			&CredentialRecord{ID: "uid-3", Email: "", PasswordHash: "h", Role: RoleUser},
			&CredentialRecord{ID: "", Email: "b@example.com", PasswordHash: "h", Role: RoleUser},
			&CredentialRecord{ID: "uid-5", Email: "c@example.com", PasswordHash: "h", Role: Role("superuser")},
		)
		return nil
	})
	if err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	fixed, err := s.Repair(ctx)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if fixed != 4 {
		t.Fatalf("expected 4 repairs, got %d", fixed)
	}

	err = s.View(ctx, func(snap *Snapshot) error {
		if len(snap.Users) != 3 {
			t.Fatalf("expected 3 surviving users, got %d", len(snap.Users))
		}
		for _, u := range snap.Users {
			if u.ID == "" {
				t.Fatal("expected ids assigned everywhere")
			}
			if u.Role != RoleUser && u.Role != RoleAdmin {
				t.Fatalf("expected role normalized, got %q", u.Role)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	fixed, err = s.Repair(ctx)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if fixed != 0 {
		t.Fatalf("expected clean snapshot, got %d repairs", fixed)
	}
}

func TestFindByEmailMisses(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})

	if _, err := s.FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestAuditCapEnforcedOnSave(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	s := newTestStore(t, rdb, Config{MaxAuditEntries: 5})
	err := s.Mutate(ctx, func(snap *Snapshot) error {
		for i := 0; i < 10; i++ {
			snap.AppendAudit(AuditLogEntry{ID: string(rune('a' + i)), Action: "login"}, 5)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	err = s.View(ctx, func(snap *Snapshot) error {
		if len(snap.AuditLogs) != 5 {
			t.Fatalf("expected cap of 5, got %d", len(snap.AuditLogs))
		}
		if snap.AuditLogs[0].ID != "f" {
			t.Fatalf("expected oldest evicted first, got %q", snap.AuditLogs[0].ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		Users: []*CredentialRecord{{
			ID:           "uid-1",
			Email:        "a@example.com",
			PasswordHash: "hash",
			Role:         RoleUser,
		}},
	}

	blob, err := encodeEnvelope(snap, testEnvelopeKey)
	if err != nil {
		t.Fatalf("encodeEnvelope failed: %v", err)
	}
	if bytes.Contains(blob, []byte("a@example.com")) {
		t.Fatal("expected ciphertext, found plaintext email")
	}

	decoded, err := decodeEnvelope(blob, testEnvelopeKey)
	if err != nil {
		t.Fatalf("decodeEnvelope failed: %v", err)
	}
	if len(decoded.Users) != 1 || decoded.Users[0].Email != "a@example.com" {
		t.Fatalf("unexpected decoded snapshot: %+v", decoded)
	}

	// Structural damage is uniformly reported as corruption.
	if _, err := decodeEnvelope(blob[:10], testEnvelopeKey); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for truncated blob, got %v", err)
	}
	blob[0] = 99
	if _, err := decodeEnvelope(blob, testEnvelopeKey); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for unknown version, got %v", err)
	}
}

func TestSecretEncryption(t *testing.T) {
	secret := []byte("super-secret-totp-seed")

	sealed, err := EncryptSecret(secret, testEnvelopeKey)
	if err != nil {
		t.Fatalf("EncryptSecret failed: %v", err)
	}
	if bytes.Contains(sealed, secret) {
		t.Fatal("expected sealed secret")
	}

	opened, err := DecryptSecret(sealed, testEnvelopeKey)
	if err != nil {
		t.Fatalf("DecryptSecret failed: %v", err)
	}
	if !bytes.Equal(opened, secret) {
		t.Fatalf("round trip mismatch: %q", opened)
	}

	if _, err := EncryptSecret(secret, []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := DecryptSecret(sealed[:8], testEnvelopeKey); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for truncated blob, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Alice@Example.COM  ": "alice@example.com",
		"bob@example.com":       "bob@example.com",
		"":                      "",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
