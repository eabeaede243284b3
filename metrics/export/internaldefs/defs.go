package internaldefs

import (
	credVault "github.com/MrEthical07/credVault"
)

// CounterDef defines a public type used by credVault APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   credVault.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by credVault APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   credVault.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: credVault.MetricLoginSuccess, Name: "credvault_login_success_total", Help: "Successful login attempts."},
	{ID: credVault.MetricLoginFailure, Name: "credvault_login_failure_total", Help: "Failed login attempts."},
	{ID: credVault.MetricLoginRateLimited, Name: "credvault_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: credVault.MetricAccountLocked, Name: "credvault_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: credVault.MetricAccountProvisioned, Name: "credvault_account_provisioned_total", Help: "Accounts auto-provisioned through passwordless completion."},
	{ID: credVault.MetricRegistrationSuccess, Name: "credvault_registration_success_total", Help: "Successful registrations."},
	{ID: credVault.MetricRegistrationDuplicate, Name: "credvault_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: credVault.MetricRegistrationRateLimited, Name: "credvault_registration_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: credVault.MetricPasswordChangeSuccess, Name: "credvault_password_change_success_total", Help: "Successful password changes."},
	{ID: credVault.MetricPasswordChangeInvalidOld, Name: "credvault_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
	{ID: credVault.MetricPasswordChangeReuseRejected, Name: "credvault_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: credVault.MetricPasswordPolicyRejected, Name: "credvault_password_policy_rejected_total", Help: "Passwords rejected by the policy."},
	{ID: credVault.MetricPasswordUpgraded, Name: "credvault_password_upgraded_total", Help: "Password hashes transparently upgraded on login."},
	{ID: credVault.MetricPasswordlessIssued, Name: "credvault_passwordless_issued_total", Help: "Issued passwordless challenges."},
	{ID: credVault.MetricPasswordlessVerified, Name: "credvault_passwordless_verified_total", Help: "Verified passwordless challenges."},
	{ID: credVault.MetricPasswordlessCompleted, Name: "credvault_passwordless_completed_total", Help: "Completed passwordless logins."},
	{ID: credVault.MetricPasswordlessMismatch, Name: "credvault_passwordless_mismatch_total", Help: "Passwordless code mismatches."},
	{ID: credVault.MetricPasswordlessExpired, Name: "credvault_passwordless_expired_total", Help: "Expired passwordless requests."},
	{ID: credVault.MetricPasswordlessCancelled, Name: "credvault_passwordless_cancelled_total", Help: "Cancelled passwordless requests."},
	{ID: credVault.MetricPasswordlessReplay, Name: "credvault_passwordless_replay_total", Help: "Detected passwordless replay attempts."},
	{ID: credVault.MetricPasswordlessRateLimited, Name: "credvault_passwordless_rate_limited_total", Help: "Rate-limited passwordless attempts."},
	{ID: credVault.MetricRecoveryRequested, Name: "credvault_recovery_requested_total", Help: "Recovery token requests."},
	{ID: credVault.MetricRecoveryConsumed, Name: "credvault_recovery_consumed_total", Help: "Recovery tokens consumed by a password reset."},
	{ID: credVault.MetricRecoveryRejected, Name: "credvault_recovery_rejected_total", Help: "Recovery tokens rejected as invalid or expired."},
	{ID: credVault.MetricRecoveryReplayDetected, Name: "credvault_recovery_replay_detected_total", Help: "Detected recovery token replay attempts."},
	{ID: credVault.MetricMFAEnabled, Name: "credvault_mfa_enabled_total", Help: "MFA enrollment operations."},
	{ID: credVault.MetricMFADisabled, Name: "credvault_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: credVault.MetricTOTPSuccess, Name: "credvault_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: credVault.MetricTOTPFailure, Name: "credvault_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: credVault.MetricTOTPRateLimited, Name: "credvault_totp_rate_limited_total", Help: "Rate-limited TOTP attempts."},
	{ID: credVault.MetricRecoveryCodeUsed, Name: "credvault_recovery_code_used_total", Help: "Successful recovery-code authentications."},
	{ID: credVault.MetricRecoveryCodeFailed, Name: "credvault_recovery_code_failed_total", Help: "Failed recovery-code authentications."},
	{ID: credVault.MetricRecoveryCodeRegenerated, Name: "credvault_recovery_code_regenerated_total", Help: "Recovery-code regeneration operations."},
	{ID: credVault.MetricSessionCreated, Name: "credvault_session_created_total", Help: "Created sessions."},
	{ID: credVault.MetricSessionExtended, Name: "credvault_session_extended_total", Help: "Session extension operations."},
	{ID: credVault.MetricSessionExpired, Name: "credvault_session_expired_total", Help: "Sessions expired by the monitor."},
	{ID: credVault.MetricSessionWarning, Name: "credvault_session_warning_total", Help: "Expiry warnings emitted for live sessions."},
	{ID: credVault.MetricLogout, Name: "credvault_logout_total", Help: "Logout operations."},
	{ID: credVault.MetricStoreSave, Name: "credvault_store_save_total", Help: "Persisted snapshot saves."},
	{ID: credVault.MetricStoreCorruption, Name: "credvault_store_corruption_total", Help: "Detected snapshot corruption events."},
	{ID: credVault.MetricStoreRepair, Name: "credvault_store_repair_total", Help: "Store repair passes that fixed records."},
	{ID: credVault.MetricSuspiciousActivity, Name: "credvault_suspicious_activity_total", Help: "Suspicious activity flags raised by the audit trail."},
	{ID: credVault.MetricAuditDeduplicated, Name: "credvault_audit_deduplicated_total", Help: "Audit entries coalesced by the dedup window."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: credVault.MetricAuthenticateLatency, Name: "credvault_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
