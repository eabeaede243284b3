package credVault

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/MrEthical07/credVault/store"
)

// Audit action tags. One tag per operation; the Success flag on the entry
// separates outcomes.
const (
	auditActionLogin              = "login"
	auditActionRegister           = "register"
	auditActionPasswordChange     = "password_change"
	auditActionPasswordlessStart  = "passwordless_start"
	auditActionPasswordlessVerify = "passwordless_verify"
	auditActionPasswordlessLogin  = "passwordless_login"
	auditActionPasswordlessCancel = "passwordless_cancel"
	auditActionRecoveryRequest    = "recovery_request"
	auditActionPasswordReset      = "password_reset"
	auditActionMFAEnable          = "mfa_enable"
	auditActionMFADisable         = "mfa_disable"
	auditActionMFAVerify          = "mfa_verify"
	auditActionRecoveryCodeLogin  = "recovery_code_login"
	auditActionRecoveryCodeReset  = "recovery_code_regen"
	auditActionSessionExtend      = "session_extend"
	auditActionSessionExpire      = "session_expire"
	auditActionLogout             = "logout"
	auditActionStoreRepair        = "store_repair"
	auditActionExport             = "export"
	auditActionImport             = "import"
	auditActionWipe               = "wipe"
	auditActionSuspicious         = "suspicious_activity"
)

type AuditEvent struct {
	// Sequence is stamped by the dispatcher; a gap between consecutive
	// events means the buffer dropped under backpressure.
	Sequence   uint64            `json:"sequence,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	Level      store.AuditLevel  `json:"level"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorEmail string            `json:"actor_email,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
