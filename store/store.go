package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds store tuning parameters.
type Config struct {
	// DataKey is the logical key holding the encrypted snapshot blob.
	DataKey string
	// OpLogKey is the logical key holding the rolling operational log.
	OpLogKey string
	// OpLogMaxEntries caps the rolling operational log.
	OpLogMaxEntries int
	// EnvelopeKey is the 32-byte AES key for the snapshot envelope.
	EnvelopeKey []byte
	// MaxAuditEntries caps the durable audit log inside the snapshot.
	MaxAuditEntries int
	// RecreateOnCorrupt selects availability over integrity: when true, an
	// undecryptable blob is discarded and a fresh schema is materialized;
	// when false, Load surfaces [ErrCorrupt] and leaves the blob in place.
	RecreateOnCorrupt bool
	// BootstrapAdminEmail and BootstrapAdminHash provision the initial
	// administrator record when a fresh schema is materialized.
	BootstrapAdminEmail string
	BootstrapAdminHash  string
}

// Store persists the database snapshot as a single compressed, encrypted
// blob under one logical key. All mutation runs through [Store.Mutate] under
// the store mutex; the snapshot cache and email index never diverge from the
// persisted blob on the happy path.
type Store struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time

	mu         sync.Mutex
	snap       *Snapshot
	emailIndex map[string]string
}

// New creates a [Store] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Store, error) {
	if len(cfg.EnvelopeKey) != envelopeKeySize {
		return nil, ErrInvalidKey
	}
	if cfg.DataKey == "" {
		cfg.DataKey = "credvault:db"
	}
	if cfg.OpLogKey == "" {
		cfg.OpLogKey = "credvault:oplog"
	}
	if cfg.OpLogMaxEntries <= 0 {
		cfg.OpLogMaxEntries = 200
	}
	if cfg.MaxAuditEntries <= 0 {
		cfg.MaxAuditEntries = 1000
	}

	return &Store{
		redis:      redisClient,
		config:     cfg,
		now:        time.Now,
		emailIndex: map[string]string{},
	}, nil
}

// SetClock overrides the store clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnvelopeKey exposes the envelope key for secret-field encryption
// ([EncryptSecret]) by the owning engine.
func (s *Store) EnvelopeKey() []byte {
	return s.config.EnvelopeKey
}

// Load returns the current database snapshot. Missing data materializes a
// fresh schema with the bootstrap administrator. Corrupt data follows the
// configured recreate policy.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (*Snapshot, error) {
	if s.snap != nil {
		return s.snap, nil
	}

	data, err := s.redis.Get(ctx, s.config.DataKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.recreateLocked(ctx, "empty")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	snap, err := decodeEnvelope(data, s.config.EnvelopeKey)
	if err != nil {
		if errors.Is(err, ErrCorrupt) && s.config.RecreateOnCorrupt {
			log.Print("credVault: discarding corrupt snapshot, recreating schema")
			return s.recreateLocked(ctx, "corrupt")
		}
		return nil, err
	}

	s.snap = snap
	s.rebuildIndexesLocked()
	return snap, nil
}

func (s *Store) recreateLocked(ctx context.Context, reason string) (*Snapshot, error) {
	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		LastUpdated:   s.now(),
	}
	if s.config.BootstrapAdminEmail != "" {
		snap.Users = append(snap.Users, &CredentialRecord{
			ID:           uuid.NewString(),
			Email:        NormalizeEmail(s.config.BootstrapAdminEmail),
			PasswordHash: s.config.BootstrapAdminHash,
			Role:         RoleAdmin,
			CreatedAt:    s.now(),
			Metadata:     map[string]string{"provisioned": "bootstrap"},
		})
	}

	s.snap = snap
	s.rebuildIndexesLocked()

	if err := s.saveLocked(ctx); err != nil {
		s.snap = nil
		return nil, err
	}

	s.appendOpLogLocked(ctx, "schema recreated: "+reason)
	return snap, nil
}

// Save recomputes indexes, stamps the last-updated time, and writes the
// snapshot atomically as a single key. It returns an error instead of
// panicking on any failure.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	snap := s.snap
	if snap == nil {
		return fmt.Errorf("%w: no snapshot loaded", ErrUnavailable)
	}

	snap.SchemaVersion = SchemaVersion
	snap.LastUpdated = s.now()
	if max := s.config.MaxAuditEntries; len(snap.AuditLogs) > max {
		snap.AuditLogs = snap.AuditLogs[len(snap.AuditLogs)-max:]
	}
	s.rebuildIndexesLocked()

	blob, err := encodeEnvelope(snap, s.config.EnvelopeKey)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.config.DataKey, blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Mutate runs fn against the loaded snapshot and persists the result. The
// whole load-modify-save cycle holds the store mutex, making it the critical
// section for every write path.
func (s *Store) Mutate(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.saveLocked(ctx)
}

// View runs fn against the loaded snapshot without persisting anything.
func (s *Store) View(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	return fn(snap)
}

// FindByEmail resolves a credential record through the email index.
func (s *Store) FindByEmail(ctx context.Context, email string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	id, ok := s.emailIndex[NormalizeEmail(email)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec := snap.FindUser(id); rec != nil {
		return rec, nil
	}
	return nil, ErrRecordNotFound
}

func (s *Store) rebuildIndexesLocked() {
	index := make(map[string]string, len(s.snap.Users))
	for _, u := range s.snap.Users {
		key := NormalizeEmail(u.Email)
		if _, taken := index[key]; taken {
			continue // first record wins; Repair resolves duplicates
		}
		index[key] = u.ID
	}
	s.emailIndex = index

	if s.snap.CurrentUserID != "" && s.snap.FindUser(s.snap.CurrentUserID) == nil {
		s.snap.CurrentUserID = ""
	}
}

// Repair scans for structural invariant violations and fixes them in place:
// duplicate emails, records missing mandatory fields, a stale current-user
// pointer, and a missing bootstrap administrator. It returns the number of
// repairs applied and logs each one to the operational log.
func (s *Store) Repair(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}

	repairs := 0
	seen := map[string]bool{}
	kept := snap.Users[:0]
	for _, u := range snap.Users {
		key := NormalizeEmail(u.Email)
		switch {
		case u.Email == "" || u.PasswordHash == "":
			repairs++
			s.appendOpLogLocked(ctx, "repair: dropped record missing mandatory fields "+u.ID)
			continue
		case seen[key]:
			repairs++
			s.appendOpLogLocked(ctx, "repair: dropped duplicate email record "+u.ID)
			continue
		}
		seen[key] = true
		if u.ID == "" {
			u.ID = uuid.NewString()
			repairs++
			s.appendOpLogLocked(ctx, "repair: assigned id to record "+u.Email)
		}
		if u.Role != RoleUser && u.Role != RoleAdmin {
			u.Role = RoleUser
			repairs++
			s.appendOpLogLocked(ctx, "repair: normalized role on record "+u.ID)
		}
		kept = append(kept, u)
	}
	snap.Users = kept

	if s.config.BootstrapAdminEmail != "" {
		if _, ok := s.findByEmailLocked(snap, s.config.BootstrapAdminEmail); !ok {
			snap.Users = append(snap.Users, &CredentialRecord{
				ID:           uuid.NewString(),
				Email:        NormalizeEmail(s.config.BootstrapAdminEmail),
				PasswordHash: s.config.BootstrapAdminHash,
				Role:         RoleAdmin,
				CreatedAt:    s.now(),
				Metadata:     map[string]string{"provisioned": "repair"},
			})
			repairs++
			s.appendOpLogLocked(ctx, "repair: restored bootstrap administrator")
		}
	}

	if snap.SchemaVersion != SchemaVersion {
		snap.SchemaVersion = SchemaVersion
		repairs++
		s.appendOpLogLocked(ctx, "repair: migrated schema version")
	}

	if repairs == 0 {
		return 0, nil
	}
	if err := s.saveLocked(ctx); err != nil {
		return repairs, err
	}
	return repairs, nil
}

func (s *Store) findByEmailLocked(snap *Snapshot, email string) (*CredentialRecord, bool) {
	key := NormalizeEmail(email)
	for _, u := range snap.Users {
		if NormalizeEmail(u.Email) == key {
			return u, true
		}
	}
	return nil, false
}

// Wipe deletes the persisted snapshot and operational log and clears the
// in-memory cache and indexes. The owning engine must invalidate its own
// derived caches in the same operation.
func (s *Store) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.redis.Del(ctx, s.config.DataKey, s.config.OpLogKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.snap = nil
	s.emailIndex = map[string]string{}
	return nil
}

// AppendOpLog pushes a line onto the rolling operational log, trimming to the
// configured cap. Failures are swallowed; the operational log is advisory.
func (s *Store) AppendOpLog(ctx context.Context, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendOpLogLocked(ctx, line)
}

func (s *Store) appendOpLogLocked(ctx context.Context, line string) {
	stamped := s.now().UTC().Format(time.RFC3339) + " " + line
	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, s.config.OpLogKey, stamped)
	pipe.LTrim(ctx, s.config.OpLogKey, 0, int64(s.config.OpLogMaxEntries-1))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Print("credVault: oplog append failed")
	}
}

// OpLog returns the rolling operational log, newest first.
func (s *Store) OpLog(ctx context.Context) ([]string, error) {
	lines, err := s.redis.LRange(ctx, s.config.OpLogKey, 0, int64(s.config.OpLogMaxEntries-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lines, nil
}
