package session

import "time"

// State is one live session attached to an authenticated principal.
type State struct {
	SessionID string
	UserID    string
	Email     string

	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time

	warned bool
}

// Remaining returns the time left before absolute expiry, floored at zero.
func (s *State) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	r := s.ExpiresAt.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// Idle returns the time since the last recorded user activity.
func (s *State) Idle(now time.Time) time.Duration {
	if s == nil || s.LastActivity.IsZero() {
		return 0
	}
	return now.Sub(s.LastActivity)
}
