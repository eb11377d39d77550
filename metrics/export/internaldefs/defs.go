package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricRegisterSuccess, Name: "gosession_register_success_total", Help: "Successful registrations."},
	{ID: goSession.MetricRegisterFailure, Name: "gosession_register_failure_total", Help: "Failed registrations."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Explicit logouts of an active session."},
	{ID: goSession.MetricSessionRestored, Name: "gosession_session_restored_total", Help: "Sessions restored from storage."},
	{ID: goSession.MetricSessionCorrupt, Name: "gosession_session_corrupt_total", Help: "Persisted sessions discarded as corrupt."},
	{ID: goSession.MetricSessionCleared, Name: "gosession_session_cleared_total", Help: "Terminated sessions, any reason."},
	{ID: goSession.MetricRefreshStarted, Name: "gosession_refresh_started_total", Help: "Refresh cycles started."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh cycles that renewed the token."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh cycles that ended the session."},
	{ID: goSession.MetricRefreshWaiterQueued, Name: "gosession_refresh_waiter_queued_total", Help: "Callers that joined a refresh already in flight."},
	{ID: goSession.MetricRequestReplayed, Name: "gosession_request_replayed_total", Help: "Requests replayed after a 401."},
	{ID: goSession.MetricStaleReplay, Name: "gosession_stale_replay_total", Help: "Replays that reused a token refreshed by another caller."},
	{ID: goSession.MetricRetryExhausted, Name: "gosession_retry_exhausted_total", Help: "Requests still unauthorized after their single replay."},
	{ID: goSession.MetricProactiveRefresh, Name: "gosession_proactive_refresh_total", Help: "Refreshes triggered ahead of token expiry."},
	{ID: goSession.MetricIdleTimeout, Name: "gosession_idle_timeout_total", Help: "Sessions ended by inactivity."},
	{ID: goSession.MetricGuardAllow, Name: "gosession_guard_allow_total", Help: "Guard checks that allowed access."},
	{ID: goSession.MetricGuardRedirectLogin, Name: "gosession_guard_redirect_login_total", Help: "Guard checks that sent an anonymous caller to sign in."},
	{ID: goSession.MetricGuardRedirect, Name: "gosession_guard_redirect_total", Help: "Guard checks that redirected an under-privileged caller."},
	{ID: goSession.MetricGuardDeny, Name: "gosession_guard_deny_total", Help: "Guard checks that denied access in place."},
	{ID: goSession.MetricBackgroundFailure, Name: "gosession_background_failure_total", Help: "Failed background task runs."},
	{ID: goSession.MetricPreferencesFailure, Name: "gosession_preferences_failure_total", Help: "Failed or skipped preference loads and resets."},
	{ID: goSession.MetricPersistFailure, Name: "gosession_persist_failure_total", Help: "Session writes that storage rejected."},
	{ID: goSession.MetricAuditPublishFailure, Name: "gosession_audit_publish_failure_total", Help: "Audit events the broker did not accept."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Wall time of one refresh cycle."},
}

// HistogramBounds are the upper bounds, in seconds, matching the core
// bucket layout.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
