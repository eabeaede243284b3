package store

import (
	"strings"
	"time"
)

// SchemaVersion is the current snapshot schema version. Snapshots carrying an
// older version are migrated in place by [Store.Repair].
const SchemaVersion = 2

// Role is the coarse authorization level attached to a credential record.
type Role string

const (
	// RoleUser is the default role for provisioned records.
	RoleUser Role = "user"
	// RoleAdmin marks the bootstrap administrator and promoted records.
	RoleAdmin Role = "admin"
)

// AuditLevel classifies the severity of an audit log entry.
type AuditLevel string

const (
	// AuditInfo is an informational audit entry.
	AuditInfo AuditLevel = "info"
	// AuditWarning is a warning audit entry.
	AuditWarning AuditLevel = "warning"
	// AuditError is an error audit entry.
	AuditError AuditLevel = "error"
)

// RecoveryCode stores the SHA-256 hash of a single one-time recovery code.
// The plaintext is never persisted; consumption removes the entry.
type RecoveryCode struct {
	Hash []byte `json:"hash"`
}

// CredentialRecord is the durable identity record, one per principal.
//
// Email is unique within a snapshot (case-insensitive); the store enforces
// this on save and [Store.Repair] resolves violations in favor of the oldest
// record.
type CredentialRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`

	MFAEnabled bool   `json:"mfa_enabled"`
	MFASecret  []byte `json:"mfa_secret,omitempty"`

	// PasswordHistory holds previous password hashes, newest first,
	// capped at the configured history size.
	PasswordHistory []string `json:"password_history,omitempty"`

	FailedLoginAttempts int       `json:"failed_login_attempts"`
	LockedUntil         time.Time `json:"locked_until,omitempty"`

	RecoveryCodes []RecoveryCode    `json:"recovery_codes,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AuditLogEntry is one append-only audit record. The durable list is capped;
// oldest entries are evicted first.
type AuditLogEntry struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Level      AuditLevel        `json:"level"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorEmail string            `json:"actor_email,omitempty"`
	Action     string            `json:"action"`
	Success    bool              `json:"success"`
	Details    map[string]string `json:"details,omitempty"`
}

// RecoveryToken is a single-use password recovery token. At most one unused
// token is live per email; issuing a new one supersedes the previous token.
type RecoveryToken struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Used      bool      `json:"used"`
	UsedAt    time.Time `json:"used_at,omitempty"`
}

// Snapshot is the full database image persisted as one envelope under a
// single logical key.
type Snapshot struct {
	SchemaVersion  int                 `json:"schema_version"`
	LastUpdated    time.Time           `json:"last_updated"`
	CurrentUserID  string              `json:"current_user_id,omitempty"`
	Users          []*CredentialRecord `json:"users"`
	AuditLogs      []AuditLogEntry     `json:"audit_logs"`
	RecoveryTokens []*RecoveryToken    `json:"recovery_tokens"`
}

// NormalizeEmail lowercases and trims an email for use as an index key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindUser returns the record with the given id, or nil.
func (s *Snapshot) FindUser(id string) *CredentialRecord {
	for _, u := range s.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// AppendAudit appends an entry and evicts the oldest beyond max.
func (s *Snapshot) AppendAudit(entry AuditLogEntry, max int) {
	s.AuditLogs = append(s.AuditLogs, entry)
	if max > 0 && len(s.AuditLogs) > max {
		s.AuditLogs = s.AuditLogs[len(s.AuditLogs)-max:]
	}
}
