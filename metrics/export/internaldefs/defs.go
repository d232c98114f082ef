package internaldefs

import (
	"github.com/scalebench/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs maps every engine counter onto a stable exporter name.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricAuthURLIssued, Name: "authcore_auth_url_issued_total", Help: "Issued provider authorization URLs."},
	{ID: authcore.MetricAuthSuccess, Name: "authcore_auth_success_total", Help: "Successful code exchanges."},
	{ID: authcore.MetricAuthFailure, Name: "authcore_auth_failure_total", Help: "Failed code exchanges."},
	{ID: authcore.MetricAuthRateLimited, Name: "authcore_auth_rate_limited_total", Help: "Rate-limited authentication attempts."},
	{ID: authcore.MetricUnverifiedEmailRejected, Name: "authcore_unverified_email_rejected_total", Help: "Identities rejected for unverified email."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricDeviceMismatch, Name: "authcore_device_mismatch_total", Help: "Refresh tokens presented from the wrong device."},
	{ID: authcore.MetricRevokedTokenRejected, Name: "authcore_revoked_token_rejected_total", Help: "Revoked refresh tokens presented."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: authcore.MetricBenchmarkCacheHit, Name: "authcore_benchmark_cache_hit_total", Help: "Benchmark reports served from cache."},
	{ID: authcore.MetricBenchmarkCacheMiss, Name: "authcore_benchmark_cache_miss_total", Help: "Benchmark reports compiled on demand."},
}

// HistogramDefs maps the engine histograms onto stable exporter names.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bucket bounds in seconds, text form.
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

// HistogramBoundSuffix mirrors HistogramBounds with characters safe in
// attribute names.
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

// NormalizeBuckets copies a raw bucket slice into the fixed-width form,
// truncating or zero-padding as needed.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
