package credVault

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/MrEthical07/credVault/internal"
)

// passwordlessRequest is one transient passwordless challenge. Requests are
// held in memory only; a restart invalidates everything outstanding, which
// is the intended failure mode for short-lived login codes.
type passwordlessRequest struct {
	ID         string
	Identifier string
	Method     PasswordlessMethod
	SecretHash []byte
	Verified   bool
	Consumed   bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (r *passwordlessRequest) expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// passwordlessStore is the in-memory table of outstanding passwordless
// requests. Expired requests are evicted on touch and by the sweeper.
type passwordlessStore struct {
	mu   sync.Mutex
	byID map[string]*passwordlessRequest
	now  func() time.Time
}

func newPasswordlessStore() *passwordlessStore {
	return &passwordlessStore{
		byID: map[string]*passwordlessRequest{},
		now:  time.Now,
	}
}

// SetClock overrides the store clock. Intended for tests.
func (s *passwordlessStore) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Put registers a request. An existing request for the same identifier is
// superseded so at most one challenge is live per identifier.
func (s *passwordlessStore) Put(req *passwordlessRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.byID {
		if existing.Identifier == req.Identifier {
			delete(s.byID, id)
		}
	}
	s.byID[req.ID] = req
}

// Get returns the live request with the given id. An expired request is
// evicted and reported as absent, with expired set so callers can
// distinguish the two for bookkeeping.
func (s *passwordlessStore) Get(id string) (req *passwordlessRequest, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if r.expired(s.now()) {
		delete(s.byID, id)
		return nil, true
	}
	return r, false
}

// FindByToken locates a live link-method request by its opaque token. All
// candidates are compared in constant time.
func (s *passwordlessStore) FindByToken(token string) (req *passwordlessRequest, expired bool) {
	want := internal.HashSecretExact(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var found *passwordlessRequest
	wasExpired := false
	for id, r := range s.byID {
		if r.Method != MethodLink {
			continue
		}
		if subtle.ConstantTimeCompare(r.SecretHash, want) != 1 {
			continue
		}
		if r.expired(now) {
			delete(s.byID, id)
			wasExpired = true
			continue
		}
		found = r
	}
	return found, wasExpired
}

// MarkVerified flips the request into the verified state.
func (s *passwordlessStore) MarkVerified(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byID[id]; ok {
		r.Verified = true
	}
}

// MarkConsumed records completion. The record is kept until its TTL elapses
// so a second completion attempt is reported as a replay rather than an
// unknown request.
func (s *passwordlessStore) MarkConsumed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byID[id]; ok {
		r.Consumed = true
	}
}

// Delete removes a request. Removing an absent request is a no-op.
func (s *passwordlessStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Sweep evicts expired requests and returns how many were removed.
func (s *passwordlessStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, r := range s.byID {
		if r.expired(now) {
			delete(s.byID, id)
			n++
		}
	}
	return n
}

// Clear drops every outstanding request.
func (s *passwordlessStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = map[string]*passwordlessRequest{}
}

// Count returns the number of outstanding requests.
func (s *passwordlessStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
