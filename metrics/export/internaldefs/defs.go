package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed logins."},
	{ID: goIdentity.MetricProviderRejected, Name: "goidentity_provider_rejected_total", Help: "Credentials rejected by a provider validator."},
	{ID: goIdentity.MetricProviderUnavailable, Name: "goidentity_provider_unavailable_total", Help: "Provider validations that failed on a dependency."},
	{ID: goIdentity.MetricProviderRetry, Name: "goidentity_provider_retry_total", Help: "Transient provider failures that were retried."},
	{ID: goIdentity.MetricUserCreated, Name: "goidentity_user_created_total", Help: "Users created on first login."},
	{ID: goIdentity.MetricUserCreateCollision, Name: "goidentity_user_create_collision_total", Help: "Candidate user ids that were already taken."},
	{ID: goIdentity.MetricUserLinked, Name: "goidentity_user_linked_total", Help: "Provider identities linked to existing users."},
	{ID: goIdentity.MetricLinkRejected, Name: "goidentity_link_rejected_total", Help: "Linking requests that were refused."},
	{ID: goIdentity.MetricRefreshSuccess, Name: "goidentity_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: goIdentity.MetricRefreshFailure, Name: "goidentity_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: goIdentity.MetricVerifySuccess, Name: "goidentity_verify_success_total", Help: "Access tokens verified."},
	{ID: goIdentity.MetricVerifyFailure, Name: "goidentity_verify_failure_total", Help: "Access tokens rejected."},
	{ID: goIdentity.MetricSigningKeyRefresh, Name: "goidentity_signing_key_refresh_total", Help: "Signing key loads from the secret store."},
	{ID: goIdentity.MetricSigningKeyRefreshFailure, Name: "goidentity_signing_key_refresh_failure_total", Help: "Failed signing key loads."},
	{ID: goIdentity.MetricJWKSRefresh, Name: "goidentity_jwks_refresh_total", Help: "Published key set fetches."},
	{ID: goIdentity.MetricJWKSRefreshFailure, Name: "goidentity_jwks_refresh_failure_total", Help: "Failed published key set fetches."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricLoginLatency, Name: "goidentity_login_latency_seconds", Help: "Login latency histogram."},
	{ID: goIdentity.MetricRefreshLatency, Name: "goidentity_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "goidentity_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// snapshot bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
