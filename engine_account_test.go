package credVault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/credVault/password"
	"github.com/MrEthical07/credVault/store"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()
	ctx := context.Background()

	rec := registerUser(t, engine, "alice@example.com")
	if rec.ID == "" {
		t.Fatal("expected created record id")
	}
	if rec.Role != RoleUser {
		t.Fatalf("expected default role %s, got %s", RoleUser, rec.Role)
	}
	if rec.PasswordHash == testPassword || rec.PasswordHash == "" {
		t.Fatal("expected stored password to be hashed")
	}

	res, err := engine.Authenticate(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.UserID != rec.ID {
		t.Fatalf("expected user id %s, got %s", rec.ID, res.UserID)
	}
	if res.SessionID == "" || res.SessionToken == "" {
		t.Fatal("expected established session")
	}

	validated, err := engine.ValidateSessionToken(res.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSessionToken failed: %v", err)
	}
	if validated.UserID != rec.ID || validated.SessionID != res.SessionID {
		t.Fatalf("unexpected principal %+v", validated)
	}
}

func TestAuthenticateNormalizesEmail(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	registerUser(t, engine, "Alice@Example.COM")

	if _, err := engine.Authenticate(context.Background(), "  alice@example.com ", testPassword); err != nil {
		t.Fatalf("Authenticate with differently cased email failed: %v", err)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	engine, clock, done := newTestEngine(t, testConfig())
	defer done()

	registerUser(t, engine, "alice@example.com")
	clock.Advance(2 * time.Second)

	if _, err := engine.Register(context.Background(), "ALICE@example.com", testPassword); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := engine.metrics.Value(MetricRegistrationDuplicate); got != 1 {
		t.Fatalf("expected duplicate metric 1, got %d", got)
	}
}

func TestRegisterInvalidEmail(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	for _, email := range []string{"", "no-at-sign", "@leading", "trailing@", "two words@x"} {
		if _, err := engine.Register(context.Background(), email, testPassword); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestRegisterWeakPasswordRejected(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	_, err := engine.Register(context.Background(), "bob@example.com", "alllowercase1!")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if !errors.Is(err, password.ErrMissingUpper) {
		t.Fatalf("expected joined policy violation, got %v", err)
	}
}

func TestAuthenticateUnknownIdentifier(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	_, err := engine.Authenticate(context.Background(), "ghost@example.com", testPassword)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateLockoutAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Login.MaxAttempts = 100
	cfg.Account.LockoutThreshold = 3
	cfg.Account.LockoutDuration = 10 * time.Minute
	engine, clock, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")

	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
		if _, err := engine.Authenticate(ctx, "alice@example.com", "Wrong-Pass-1!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Threshold reached; even the correct password is refused while locked.
	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if got := engine.metrics.Value(MetricAccountLocked); got != 1 {
		t.Fatalf("expected lockout metric 1, got %d", got)
	}

	clock.Advance(10*time.Minute + time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected login after lockout elapsed, got %v", err)
	}
}

func TestAuthenticateRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Login = RateLimitRule{MaxAttempts: 2, Window: time.Minute, BlockDuration: 5 * time.Minute}
	cfg.Account.LockoutThreshold = 100
	engine, clock, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")

	for i := 0; i < 2; i++ {
		clock.Advance(2 * time.Second)
		if _, err := engine.Authenticate(ctx, "alice@example.com", "Wrong-Pass-1!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	clock.Advance(2 * time.Second)
	_, err := engine.Authenticate(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rl.Remaining <= 0 || rl.Remaining > 5*time.Minute {
		t.Fatalf("unexpected block remaining %s", rl.Remaining)
	}

	// The block clears after its duration and a fresh window opens.
	clock.Advance(5*time.Minute + time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected login after block elapsed, got %v", err)
	}
}

func TestAuthenticateSuccessResetsLoginLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Login = RateLimitRule{MaxAttempts: 3, Window: time.Hour, BlockDuration: time.Hour}
	engine, clock, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	registerUser(t, engine, "alice@example.com")

	// Repeated successful logins never accumulate toward the cap.
	for i := 0; i < 6; i++ {
		clock.Advance(2 * time.Second)
		if _, err := engine.Authenticate(ctx, "alice@example.com", testPassword); err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	engine, clock, done := newTestEngine(t, testConfig())
	defer done()
	ctx := context.Background()

	rec := registerUser(t, engine, "alice@example.com")
	const next = "N3w-Passw0rd-Now!"

	if err := engine.ChangePassword(ctx, rec.ID, "Wrong-Old-1!", next); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad old password, got %v", err)
	}

	clock.Advance(2 * time.Second)
	if err := engine.ChangePassword(ctx, rec.ID, testPassword, next); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := engine.Authenticate(ctx, "alice@example.com", next); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}

func TestChangePasswordReuseRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Password.HistorySize = 2
	engine, clock, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	rec := registerUser(t, engine, "alice@example.com")

	const second = "S3cond-Passw0rd!"
	if err := engine.ChangePassword(ctx, rec.ID, testPassword, second); err != nil {
		t.Fatalf("first change failed: %v", err)
	}

	// Both the current password and the retired one are refused.
	clock.Advance(2 * time.Second)
	if err := engine.ChangePassword(ctx, rec.ID, second, second); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for current password, got %v", err)
	}
	clock.Advance(2 * time.Second)
	if err := engine.ChangePassword(ctx, rec.ID, second, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for retired password, got %v", err)
	}
}

func TestChangePasswordHistoryCapped(t *testing.T) {
	cfg := testConfig()
	cfg.Password.HistorySize = 1
	engine, clock, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	rec := registerUser(t, engine, "alice@example.com")

	const second = "S3cond-Passw0rd!"
	const third = "Th1rd-Passw0rd!!"
	if err := engine.ChangePassword(ctx, rec.ID, testPassword, second); err != nil {
		t.Fatalf("first change failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	if err := engine.ChangePassword(ctx, rec.ID, second, third); err != nil {
		t.Fatalf("second change failed: %v", err)
	}

	// The first password rolled out of the single-slot history.
	clock.Advance(2 * time.Second)
	if err := engine.ChangePassword(ctx, rec.ID, third, testPassword); err != nil {
		t.Fatalf("expected rolled-out password accepted again, got %v", err)
	}
}

func TestAuthenticateUpgradesLegacyHash(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Iterations = 20_000
	engine, _, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	// Seed a record hashed at weaker parameters than the engine config.
	legacy, err := password.NewPBKDF2(password.Config{Iterations: 10_000, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("legacy hasher: %v", err)
	}
	oldHash, err := legacy.Hash(testPassword)
	if err != nil {
		t.Fatalf("legacy hash: %v", err)
	}
	err = engine.Store().Mutate(ctx, func(snap *store.Snapshot) error {
		snap.Users = append(snap.Users, &store.CredentialRecord{
			ID:           "legacy-1",
			Email:        "legacy@example.com",
			PasswordHash: oldHash,
			Role:         store.RoleUser,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	res, err := engine.Authenticate(ctx, "legacy@example.com", testPassword)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !res.PasswordUpgraded {
		t.Fatal("expected transparent hash upgrade")
	}
	if got := engine.metrics.Value(MetricPasswordUpgraded); got != 1 {
		t.Fatalf("expected upgrade metric 1, got %d", got)
	}

	err = engine.Store().View(ctx, func(snap *store.Snapshot) error {
		user := snap.FindUser("legacy-1")
		if user == nil {
			t.Fatal("record disappeared")
		}
		needs, herr := engine.hasher.NeedsUpgrade(user.PasswordHash)
		if herr != nil {
			t.Fatalf("NeedsUpgrade: %v", herr)
		}
		if needs {
			t.Fatal("expected stored hash at current parameters")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestBootstrapAdminProvisioned(t *testing.T) {
	cfg := testConfig()
	cfg.Account.BootstrapAdminEmail = "root@example.com"
	cfg.Account.BootstrapAdminPassword = "B00tstrap-Admin!"
	engine, _, done := newTestEngine(t, cfg)
	defer done()

	res, err := engine.Authenticate(context.Background(), "root@example.com", "B00tstrap-Admin!")
	if err != nil {
		t.Fatalf("bootstrap admin login failed: %v", err)
	}
	if res.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %s", res.Role)
	}
}
