package internaldefs

import (
	goCreds "github.com/MrEthical07/goCreds"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goCreds.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram. Buckets use HistogramBounds.
type HistogramDef struct {
	ID   goCreds.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goCreds.MetricRegisterSuccess, Name: "gocreds_register_success_total", Help: "Successful registrations."},
	{ID: goCreds.MetricRegisterDuplicate, Name: "gocreds_register_duplicate_total", Help: "Registrations rejected because the email exists."},
	{ID: goCreds.MetricRegisterFailure, Name: "gocreds_register_failure_total", Help: "Registrations that failed for any other reason."},
	{ID: goCreds.MetricLoginSuccess, Name: "gocreds_login_success_total", Help: "Successful logins."},
	{ID: goCreds.MetricLoginFailure, Name: "gocreds_login_failure_total", Help: "Failed logins."},
	{ID: goCreds.MetricLoginRateLimited, Name: "gocreds_login_rate_limited_total", Help: "Logins rejected by the login limiter."},
	{ID: goCreds.MetricLogout, Name: "gocreds_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: goCreds.MetricLogoutFailure, Name: "gocreds_logout_failure_total", Help: "Logout calls with an unusable refresh token."},
	{ID: goCreds.MetricRefreshSuccess, Name: "gocreds_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: goCreds.MetricRefreshFailure, Name: "gocreds_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: goCreds.MetricTemporaryLoginSuccess, Name: "gocreds_temporary_login_success_total", Help: "Logins with a temporary token."},
	{ID: goCreds.MetricTemporaryLoginFailure, Name: "gocreds_temporary_login_failure_total", Help: "Rejected temporary tokens."},
	{ID: goCreds.MetricAccessVerifyFailure, Name: "gocreds_access_verify_failure_total", Help: "Access tokens rejected by VerifyAccess."},
	{ID: goCreds.MetricEmailConfirmRequest, Name: "gocreds_email_confirm_request_total", Help: "Email confirmation tokens issued."},
	{ID: goCreds.MetricEmailConfirmSuccess, Name: "gocreds_email_confirm_success_total", Help: "Emails confirmed."},
	{ID: goCreds.MetricEmailConfirmFailure, Name: "gocreds_email_confirm_failure_total", Help: "Rejected email confirmation tokens."},
	{ID: goCreds.MetricPasswordResetRequest, Name: "gocreds_password_reset_request_total", Help: "Password reset tokens issued."},
	{ID: goCreds.MetricPasswordResetSuccess, Name: "gocreds_password_reset_success_total", Help: "Completed password resets."},
	{ID: goCreds.MetricPasswordResetFailure, Name: "gocreds_password_reset_failure_total", Help: "Rejected password reset tokens."},
	{ID: goCreds.MetricVerificationRateLimited, Name: "gocreds_verification_rate_limited_total", Help: "Verification requests inside the cooldown."},
	{ID: goCreds.MetricDeliveryFailure, Name: "gocreds_delivery_failure_total", Help: "Notifier delivery errors."},
	{ID: goCreds.MetricPasswordRehash, Name: "gocreds_password_rehash_total", Help: "Password hashes upgraded on login."},
}

var HistogramDefs = []HistogramDef{
	{ID: goCreds.MetricLoginLatency, Name: "gocreds_login_latency_seconds", Help: "Login latency."},
	{ID: goCreds.MetricRefreshLatency, Name: "gocreds_refresh_latency_seconds", Help: "Refresh rotation latency."},
	{ID: goCreds.MetricVerifyAccessLatency, Name: "gocreds_verify_access_latency_seconds", Help: "Access token verification latency."},
}

// AuditDroppedName is the counter for events lost to a full audit buffer.
const (
	AuditDroppedName = "gocreds_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

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

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
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

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
