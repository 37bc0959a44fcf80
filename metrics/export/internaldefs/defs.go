package internaldefs

import (
	"github.com/MrEthical07/tenantauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "tenantauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: tenantauth.MetricLoginSuccess, Name: "tenantauth_login_success_total", Help: "Successful logins."},
	{ID: tenantauth.MetricLoginFailure, Name: "tenantauth_login_failure_total", Help: "Failed logins."},
	{ID: tenantauth.MetricLoginUnknownUser, Name: "tenantauth_login_unknown_user_total", Help: "Logins naming a user that does not exist in the tenant."},
	{ID: tenantauth.MetricLoginLockedRejected, Name: "tenantauth_login_locked_rejected_total", Help: "Logins rejected because the account is locked."},
	{ID: tenantauth.MetricAccountLocked, Name: "tenantauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: tenantauth.MetricAccountUnlocked, Name: "tenantauth_account_unlocked_total", Help: "Accounts unlocked manually or automatically."},
	{ID: tenantauth.MetricRefreshSuccess, Name: "tenantauth_refresh_success_total", Help: "Successful token refreshes."},
	{ID: tenantauth.MetricRefreshFailure, Name: "tenantauth_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: tenantauth.MetricTokenRejected, Name: "tenantauth_token_rejected_total", Help: "Access tokens rejected by validation."},
	{ID: tenantauth.MetricTokenRevoked, Name: "tenantauth_token_revoked_total", Help: "Tokens added to the denylist."},
	{ID: tenantauth.MetricLogout, Name: "tenantauth_logout_total", Help: "Logout operations."},
	{ID: tenantauth.MetricPasswordChangeSuccess, Name: "tenantauth_password_change_success_total", Help: "Successful password changes."},
	{ID: tenantauth.MetricPasswordChangeInvalidOld, Name: "tenantauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: tenantauth.MetricPasswordChangeReuseRejected, Name: "tenantauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: tenantauth.MetricPasswordPolicyRejected, Name: "tenantauth_password_policy_rejected_total", Help: "Password changes rejected by the policy."},
	{ID: tenantauth.MetricPasswordResetTemporary, Name: "tenantauth_password_reset_temporary_total", Help: "Administrative resets to a temporary password."},
	{ID: tenantauth.MetricClientCreated, Name: "tenantauth_client_created_total", Help: "Registered OAuth clients."},
	{ID: tenantauth.MetricClientSecretRotated, Name: "tenantauth_client_secret_rotated_total", Help: "Client secret rotations."},
	{ID: tenantauth.MetricClientStatusChanged, Name: "tenantauth_client_status_changed_total", Help: "Client suspend, activate and revoke operations."},
	{ID: tenantauth.MetricVersionConflictRetry, Name: "tenantauth_version_conflict_retry_total", Help: "User writes retried after an optimistic version conflict."},
	{ID: tenantauth.MetricBackendUnavailable, Name: "tenantauth_backend_unavailable_total", Help: "Operations failed because a store or cache was unreachable."},
}

var HistogramDefs = []HistogramDef{
	{ID: tenantauth.MetricValidateLatency, Name: "tenantauth_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: tenantauth.MetricLoginLatency, Name: "tenantauth_login_latency_seconds", Help: "Login latency including password verification."},
}

// HistogramBounds are the upper bounds, in seconds, of the first seven engine buckets.
// The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" label values of the eight buckets.
var HistogramBoundLabels = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed eight bucket array, zero padding short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
