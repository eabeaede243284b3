package credVault

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/credVault/store"
)

// SanitizedRecord is a credential record with every secret-bearing field
// stripped. Safe to hand to dashboards and support tooling.
type SanitizedRecord struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	Role                Role      `json:"role"`
	CreatedAt           time.Time `json:"created_at"`
	LastLogin           time.Time `json:"last_login,omitempty"`
	MFAEnabled          bool      `json:"mfa_enabled"`
	FailedLoginAttempts int       `json:"failed_login_attempts"`
	LockedUntil         time.Time `json:"locked_until,omitempty"`
}

// SanitizedExport is the redacted snapshot produced by
// [Engine.ExportSanitized].
type SanitizedExport struct {
	SchemaVersion int                   `json:"schema_version"`
	ExportedAt    time.Time             `json:"exported_at"`
	Users         []SanitizedRecord     `json:"users"`
	AuditLogs     []store.AuditLogEntry `json:"audit_logs"`
}

// ExportSanitized describes the exportsanitized operation and its observable behavior.
//
// ExportSanitized may return an error when input validation, dependency calls, or security checks fail.
// ExportSanitized does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ExportSanitized(ctx context.Context) ([]byte, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	export := SanitizedExport{
		SchemaVersion: store.SchemaVersion,
		ExportedAt:    e.now().UTC(),
	}
	err := e.store.View(ctx, func(snap *store.Snapshot) error {
		for _, u := range snap.Users {
			export.Users = append(export.Users, SanitizedRecord{
				ID:                  u.ID,
				Email:               u.Email,
				Role:                u.Role,
				CreatedAt:           u.CreatedAt,
				LastLogin:           u.LastLogin,
				MFAEnabled:          u.MFAEnabled,
				FailedLoginAttempts: u.FailedLoginAttempts,
				LockedUntil:         u.LockedUntil,
			})
		}
		export.AuditLogs = append(export.AuditLogs, snap.AuditLogs...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordAudit(ctx, store.AuditLogEntry{
		Action:  auditActionExport,
		Success: true,
	})
	return json.MarshalIndent(export, "", "  ")
}

// Import replaces the persisted snapshot with the given full snapshot
// payload. Hash and secret fields are carried verbatim; live sessions and
// limiter state are dropped so nothing references the replaced records.
func (e *Engine) Import(ctx context.Context, data []byte) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	var incoming store.Snapshot
	if err := json.Unmarshal(data, &incoming); err != nil {
		return ErrImportInvalid
	}
	if incoming.SchemaVersion <= 0 || incoming.SchemaVersion > store.SchemaVersion {
		return ErrImportInvalid
	}
	seen := map[string]bool{}
	for _, u := range incoming.Users {
		if u == nil || u.ID == "" || !isValidEmail(store.NormalizeEmail(u.Email)) {
			return ErrImportInvalid
		}
		key := store.NormalizeEmail(u.Email)
		if seen[key] {
			return errors.Join(ErrImportInvalid, store.ErrDuplicateEmail)
		}
		seen[key] = true
	}

	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		snap.SchemaVersion = store.SchemaVersion
		snap.CurrentUserID = ""
		snap.Users = incoming.Users
		snap.AuditLogs = incoming.AuditLogs
		snap.RecoveryTokens = incoming.RecoveryTokens

		e.appendAudit(ctx, snap, store.AuditLogEntry{
			Action:  auditActionImport,
			Success: true,
		})
		return nil
	})
	if err != nil {
		return err
	}

	e.sessions.Clear()
	e.rateLimiter.ResetAll()
	e.passwordless.Clear()
	return nil
}

// RepairStore runs the store's consistency pass and reports how many
// problems were fixed.
func (e *Engine) RepairStore(ctx context.Context) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	fixed, err := e.store.Repair(ctx)
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		e.metricInc(MetricStoreRepair)
		e.recordAudit(ctx, store.AuditLogEntry{
			Level:   store.AuditWarning,
			Action:  auditActionStoreRepair,
			Success: true,
		})
	}
	return fixed, nil
}

// Wipe discards the persisted snapshot and every piece of derived state:
// live sessions, limiter records, and outstanding passwordless requests.
func (e *Engine) Wipe(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := e.store.Wipe(ctx); err != nil {
		return err
	}

	e.sessions.Clear()
	e.rateLimiter.ResetAll()
	e.passwordless.Clear()

	e.recordAudit(ctx, store.AuditLogEntry{
		Level:   store.AuditWarning,
		Action:  auditActionWipe,
		Success: true,
	})
	return nil
}
