package internaldefs

import (
	authcore "github.com/arkline-systems/authcore"
)

// CounterDef binds a core metric ID to its stable export name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable export name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter. Both exporters iterate this
// list so the two surfaces cannot drift apart.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricAuthorized, Name: "authcore_authorized_total", Help: "Requests that reached the Authorized state."},
	{ID: authcore.MetricUnauthorized, Name: "authcore_unauthorized_total", Help: "Requests rejected as unauthenticated."},
	{ID: authcore.MetricForbidden, Name: "authcore_forbidden_total", Help: "Requests rejected by authorization."},
	{ID: authcore.MetricRateLimited, Name: "authcore_rate_limited_total", Help: "Requests rejected by the rate limiter."},
	{ID: authcore.MetricInternalError, Name: "authcore_internal_error_total", Help: "Requests failed by server-side pipeline faults."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Issued tokens."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Revocations written to the store."},
	{ID: authcore.MetricRevocationFailOpen, Name: "authcore_revocation_fail_open_total", Help: "Revocation checks that failed open on store outage."},
	{ID: authcore.MetricRateLimitFailOpen, Name: "authcore_rate_limit_fail_open_total", Help: "Rate-limit checks that failed open on store outage."},
	{ID: authcore.MetricAuditAlerts, Name: "authcore_audit_alerts_total", Help: "Audit events that met the alerting rules."},
}

// HistogramDefs enumerates every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate pipeline latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, Prometheus le
// label form.
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

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// instrument names.
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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// export surfaces expose.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
