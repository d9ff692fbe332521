package internaldefs

import (
	leaseAuth "github.com/leasehub/leaseAuth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   leaseAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   leaseAuth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: leaseAuth.MetricLoginSuccess, Name: "leaseauth_login_success_total", Help: "Successful logins."},
	{ID: leaseAuth.MetricLoginFailure, Name: "leaseauth_login_failure_total", Help: "Failed logins."},
	{ID: leaseAuth.MetricLoginRateLimited, Name: "leaseauth_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: leaseAuth.MetricLoginAccountNotActive, Name: "leaseauth_login_account_not_active_total", Help: "Logins rejected because the account is not active."},
	{ID: leaseAuth.MetricRefreshSuccess, Name: "leaseauth_refresh_success_total", Help: "Access tokens minted from a refresh token."},
	{ID: leaseAuth.MetricRefreshFailure, Name: "leaseauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: leaseAuth.MetricRefreshExpired, Name: "leaseauth_refresh_expired_total", Help: "Refresh attempts with an expired refresh token."},
	{ID: leaseAuth.MetricLogout, Name: "leaseauth_logout_total", Help: "Successful logouts."},
	{ID: leaseAuth.MetricLogoutFailure, Name: "leaseauth_logout_failure_total", Help: "Failed logouts."},
	{ID: leaseAuth.MetricAuthenticateSuccess, Name: "leaseauth_authenticate_success_total", Help: "Requests bound to a principal."},
	{ID: leaseAuth.MetricAuthenticateAnonymous, Name: "leaseauth_authenticate_anonymous_total", Help: "Requests without a bearer token."},
	{ID: leaseAuth.MetricAuthenticateRejected, Name: "leaseauth_authenticate_rejected_total", Help: "Requests rejected by the gate."},
	{ID: leaseAuth.MetricBlacklistHit, Name: "leaseauth_blacklist_hit_total", Help: "Gate rejections of logged-out tokens."},
	{ID: leaseAuth.MetricGateLookupFailure, Name: "leaseauth_gate_lookup_failure_total", Help: "Directory or blacklist failures on the gate path."},
	{ID: leaseAuth.MetricUserRevoked, Name: "leaseauth_user_revoked_total", Help: "Users whose refresh token was revoked."},
	{ID: leaseAuth.MetricPasswordUpgraded, Name: "leaseauth_password_upgraded_total", Help: "Legacy password hashes rewritten on login."},
}

var HistogramDefs = []HistogramDef{
	{ID: leaseAuth.MetricGateLatency, Name: "leaseauth_gate_latency_seconds", Help: "Authentication gate latency."},
}

// EventsDroppedName is the counter for events dropped by the dispatcher.
const EventsDroppedName = "leaseauth_events_dropped_total"

// EventsDroppedHelp describes EventsDroppedName.
const EventsDroppedHelp = "Auth events dropped due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

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

// NormalizeBuckets pads or truncates raw to the engine's bucket count.
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
