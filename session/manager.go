package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when no live session matches the id.
var ErrSessionNotFound = errors.New("session not found")

// Config holds session timing parameters.
type Config struct {
	// Lifetime is the duration granted at establishment and on extension.
	Lifetime time.Duration
	// InactivityTimeout forces logout after this much silence. Zero
	// disables the inactivity variant.
	InactivityTimeout time.Duration
}

// Manager owns the live session table. All methods are safe for concurrent
// use.
type Manager struct {
	config Config
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*State
}

// NewManager creates a session [Manager].
func NewManager(cfg Config) *Manager {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 30 * time.Minute
	}
	return &Manager{
		config:   cfg,
		now:      time.Now,
		sessions: map[string]*State{},
	}
}

// SetClock overrides the manager clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Establish registers a new session for the principal and returns its state.
func (m *Manager) Establish(sessionID, userID, email string) *State {
	now := m.now()
	s := &State{
		SessionID:    sessionID,
		UserID:       userID,
		Email:        email,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.config.Lifetime),
		LastActivity: now,
	}

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()
	return s
}

// Remaining returns the time left on the session, or an error when the
// session does not exist or has already expired.
func (m *Manager) Remaining(sessionID string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}

	r := s.Remaining(m.now())
	if r == 0 {
		delete(m.sessions, sessionID)
		return 0, ErrSessionNotFound
	}
	return r, nil
}

// Extend pushes the session expiry forward by the configured lifetime and
// returns the new remaining time.
func (m *Manager) Extend(sessionID string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}

	now := m.now()
	if s.Remaining(now) == 0 {
		delete(m.sessions, sessionID)
		return 0, ErrSessionNotFound
	}

	s.ExpiresAt = now.Add(m.config.Lifetime)
	s.warned = false
	return s.Remaining(now), nil
}

// Touch stamps the last-activity time. Session length under the inactivity
// variant is measured from this stamp rather than from login time.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastActivity = m.now()
	return nil
}

// Get returns the live session state, or nil.
func (m *Manager) Get(sessionID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Delete removes a session. Deleting an absent session is a no-op.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// DeleteAllForUser removes every session belonging to the principal.
func (m *Manager) DeleteAllForUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Clear drops every live session. Used on store wipe so session state and
// snapshot state cannot diverge.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = map[string]*State{}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep applies expiry and inactivity rules once. It returns the sessions
// that were warned and those that were expired on this pass.
func (m *Manager) sweep(warnThreshold time.Duration) (warned, expired []*State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, s := range m.sessions {
		if s.Remaining(now) == 0 {
			delete(m.sessions, id)
			expired = append(expired, s)
			continue
		}
		if m.config.InactivityTimeout > 0 && s.Idle(now) >= m.config.InactivityTimeout {
			delete(m.sessions, id)
			expired = append(expired, s)
			continue
		}
		if warnThreshold > 0 && !s.warned && s.Remaining(now) <= warnThreshold {
			s.warned = true
			warned = append(warned, s)
		}
	}
	return warned, expired
}
