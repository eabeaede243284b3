package credVault

import (
	"context"
	"log"

	"github.com/MrEthical07/credVault/store"
	"github.com/google/uuid"
)

func (e *Engine) newAuditEntry(entry store.AuditLogEntry) store.AuditLogEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.now().UTC()
	}
	if entry.Level == "" {
		entry.Level = store.AuditInfo
	}
	return entry
}

// appendAudit writes one durable audit entry into the snapshot under an
// ongoing mutation and mirrors it to the async dispatcher. Entries identical
// to one appended within the dedup window are coalesced into the earlier
// entry. A failure entry that pushes the actor over the suspicious threshold
// appends a second, warning-level entry.
func (e *Engine) appendAudit(ctx context.Context, snap *store.Snapshot, entry store.AuditLogEntry) {
	entry = e.newAuditEntry(entry)

	if w := e.config.Audit.DedupWindow; w > 0 {
		for i := len(snap.AuditLogs) - 1; i >= 0; i-- {
			prev := snap.AuditLogs[i]
			if entry.Timestamp.Sub(prev.Timestamp) > w {
				break
			}
			if prev.Action == entry.Action &&
				prev.ActorID == entry.ActorID &&
				prev.ActorEmail == entry.ActorEmail &&
				prev.Success == entry.Success {
				e.metricInc(MetricAuditDeduplicated)
				return
			}
		}
	}

	snap.AppendAudit(entry, e.config.Store.MaxAuditEntries)
	e.audit.EmitEntry(ctx, entry)

	if !entry.Success && entry.Action != auditActionSuspicious {
		e.flagSuspicious(ctx, snap, entry)
	}
}

// flagSuspicious appends a warning entry when the actor's recent failures
// reach the configured threshold. It fires exactly once per crossing: only
// when the count equals the threshold.
func (e *Engine) flagSuspicious(ctx context.Context, snap *store.Snapshot, entry store.AuditLogEntry) {
	threshold := e.config.Audit.SuspiciousFailureThreshold
	if threshold <= 0 {
		return
	}

	actor := entry.ActorEmail
	if actor == "" {
		actor = entry.ActorID
	}
	if actor == "" {
		return
	}

	count := 0
	for i := len(snap.AuditLogs) - 1; i >= 0; i-- {
		prev := snap.AuditLogs[i]
		if entry.Timestamp.Sub(prev.Timestamp) > e.config.Audit.SuspiciousWindow {
			break
		}
		if prev.Success || prev.Action == auditActionSuspicious {
			continue
		}
		if prev.ActorEmail == actor || (prev.ActorEmail == "" && prev.ActorID == actor) {
			count++
		}
	}
	if count != threshold {
		return
	}

	flag := e.newAuditEntry(store.AuditLogEntry{
		Level:      store.AuditWarning,
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		Action:     auditActionSuspicious,
		Success:    false,
		Details: map[string]string{
			"trigger_action": entry.Action,
			"failures":       "threshold_reached",
		},
	})
	snap.AppendAudit(flag, e.config.Store.MaxAuditEntries)
	e.metricInc(MetricSuspiciousActivity)
	e.audit.EmitEntry(ctx, flag)
}

// recordAudit durably appends an audit entry outside any ongoing mutation.
// Best effort: a store failure is logged, never surfaced.
func (e *Engine) recordAudit(ctx context.Context, entry store.AuditLogEntry) {
	if e == nil || e.store == nil {
		return
	}
	err := e.store.Mutate(ctx, func(snap *store.Snapshot) error {
		e.appendAudit(ctx, snap, entry)
		return nil
	})
	if err != nil {
		log.Print("credVault: audit append failed: ", err)
	}
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, event)
}

// QueryAuditLog returns durable audit entries matching the filter, oldest
// first. A positive Limit keeps only the most recent matches.
func (e *Engine) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]store.AuditLogEntry, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	var out []store.AuditLogEntry
	err := e.store.View(ctx, func(snap *store.Snapshot) error {
		for _, entry := range snap.AuditLogs {
			if matchesFilter(entry, filter) {
				out = append(out, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func matchesFilter(entry store.AuditLogEntry, f AuditFilter) bool {
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.ActorID != "" && entry.ActorID != f.ActorID {
		return false
	}
	if f.ActorEmail != "" && entry.ActorEmail != store.NormalizeEmail(f.ActorEmail) {
		return false
	}
	if f.Level != "" && entry.Level != f.Level {
		return false
	}
	if f.Success != nil && entry.Success != *f.Success {
		return false
	}
	if !f.From.IsZero() && entry.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && entry.Timestamp.After(f.To) {
		return false
	}
	return true
}

// SuccessRate returns the fraction of matching audit entries that succeeded.
// An empty action measures across every entry. No matches yields zero.
func (e *Engine) SuccessRate(ctx context.Context, action string) (float64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	total, succeeded := 0, 0
	err := e.store.View(ctx, func(snap *store.Snapshot) error {
		for _, entry := range snap.AuditLogs {
			if action != "" && entry.Action != action {
				continue
			}
			total++
			if entry.Success {
				succeeded++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if total == 0 {
		return 0, nil
	}
	return float64(succeeded) / float64(total), nil
}
