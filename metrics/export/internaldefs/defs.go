package internaldefs

import (
	trustgate "github.com/trustgate-io/trustgate"
)

// CounterDef binds a core metric id to its exported name and help text.
type CounterDef struct {
	ID   trustgate.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram id to its exported name and help text.
type HistogramDef struct {
	ID   trustgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: trustgate.MetricAuthSuccess, Name: "trustgate_auth_success_total", Help: "Successful authentications."},
	{ID: trustgate.MetricAuthFailure, Name: "trustgate_auth_failure_total", Help: "Failed authentication attempts."},
	{ID: trustgate.MetricAuthRateLimited, Name: "trustgate_auth_rate_limited_total", Help: "Requests denied by the rate limiter."},
	{ID: trustgate.MetricLockoutTriggered, Name: "trustgate_lockout_triggered_total", Help: "Automatic lockouts at the failed-attempt threshold."},
	{ID: trustgate.MetricAccountUnlocked, Name: "trustgate_account_unlocked_total", Help: "Administrative unlock operations."},
	{ID: trustgate.MetricStatusChanged, Name: "trustgate_status_changed_total", Help: "Administrative status changes."},
	{ID: trustgate.MetricSessionOpened, Name: "trustgate_session_opened_total", Help: "Opened sessions."},
	{ID: trustgate.MetricSessionClosed, Name: "trustgate_session_closed_total", Help: "Closed sessions, voluntary or forced."},
	{ID: trustgate.MetricSessionSwept, Name: "trustgate_session_swept_total", Help: "Expired session rows removed by the sweeper."},
	{ID: trustgate.MetricTokenRevoked, Name: "trustgate_token_revoked_total", Help: "Tokens written to the revocation ledger."},
	{ID: trustgate.MetricRevocationSwept, Name: "trustgate_revocation_swept_total", Help: "Expired revocation entries purged."},
	{ID: trustgate.MetricValidateSuccess, Name: "trustgate_validate_success_total", Help: "Accepted session tokens."},
	{ID: trustgate.MetricValidateRejected, Name: "trustgate_validate_rejected_total", Help: "Rejected session tokens of any cause."},
	{ID: trustgate.MetricMFARequired, Name: "trustgate_mfa_required_total", Help: "Logins deferred to a second factor."},
	{ID: trustgate.MetricMFASuccess, Name: "trustgate_mfa_success_total", Help: "Successful second-factor verifications."},
	{ID: trustgate.MetricMFAFailure, Name: "trustgate_mfa_failure_total", Help: "Failed second-factor verifications."},
	{ID: trustgate.MetricRecoveryCodeUsed, Name: "trustgate_recovery_code_used_total", Help: "Consumed single-use recovery codes."},
	{ID: trustgate.MetricRecoveryCodesRegenerated, Name: "trustgate_recovery_codes_regenerated_total", Help: "Recovery-code set rotations."},
	{ID: trustgate.MetricResetRequested, Name: "trustgate_reset_requested_total", Help: "Issued password-reset tokens."},
	{ID: trustgate.MetricResetCompleted, Name: "trustgate_reset_completed_total", Help: "Completed password resets."},
	{ID: trustgate.MetricResetFailed, Name: "trustgate_reset_failed_total", Help: "Rejected password-reset attempts."},
	{ID: trustgate.MetricRegisterSuccess, Name: "trustgate_register_success_total", Help: "Created principals."},
	{ID: trustgate.MetricRegisterDuplicate, Name: "trustgate_register_duplicate_total", Help: "Registrations rejected as duplicate."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: trustgate.MetricValidateLatency, Name: "trustgate_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds are the upper bounds rendered for each bucket.
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

// HistogramBoundSuffix mirrors HistogramBounds with metric-name-safe text.
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

// NormalizeBuckets copies a snapshot slice into the fixed bucket array,
// tolerating short or missing slices.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// both exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
