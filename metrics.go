package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one operational counter.
type MetricID uint16

const (
	// MetricAuthorized counts requests that reached the Authorized state.
	MetricAuthorized MetricID = iota
	// MetricUnauthorized counts authentication rejections.
	MetricUnauthorized
	// MetricForbidden counts authorization rejections.
	MetricForbidden
	// MetricRateLimited counts requests rejected by the rate limiter.
	MetricRateLimited
	// MetricInternalError counts server-side pipeline faults.
	MetricInternalError
	// MetricTokenIssued counts issued token pairs.
	MetricTokenIssued
	// MetricTokenRevoked counts revocations written to the store.
	MetricTokenRevoked
	// MetricRevocationFailOpen counts revocation checks that failed open
	// because the store was unreachable.
	MetricRevocationFailOpen
	// MetricRateLimitFailOpen counts rate-limit checks that failed open.
	MetricRateLimitFailOpen
	// MetricAuditAlerts counts audit events that met the alerting rules.
	MetricAuditAlerts
	// MetricAuthenticateLatency is the pipeline latency histogram.
	MetricAuthenticateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricAuthorized:          "authorized_total",
	MetricUnauthorized:        "unauthorized_total",
	MetricForbidden:           "forbidden_total",
	MetricRateLimited:         "rate_limited_total",
	MetricInternalError:       "internal_error_total",
	MetricTokenIssued:         "token_issued_total",
	MetricTokenRevoked:        "token_revoked_total",
	MetricRevocationFailOpen:  "revocation_fail_open_total",
	MetricRateLimitFailOpen:   "rate_limit_fail_open_total",
	MetricAuditAlerts:         "audit_alerts_total",
	MetricAuthenticateLatency: "authenticate_latency",
}

// MetricName returns the stable export name for id, or "" for unknown IDs.
func MetricName(id MetricID) string {
	if id >= metricIDCount {
		return ""
	}
	return metricNames[id]
}

// MetricCount is the number of defined metric IDs. Exporters iterate
// [0, MetricCount).
const MetricCount = uint16(metricIDCount)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBucketBounds are the upper bounds, in milliseconds, of the
// latency histogram buckets. The last bucket is unbounded.
var HistogramBucketBounds = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so hot counters do
// not false-share under concurrent load.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the process-local counter set. It is an explicitly constructed,
// injected component; there is no package-level registry.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// MetricsConfig enables the counter set and, separately, the latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// NewMetrics returns a counter set per cfg. A disabled Metrics accepts all
// calls as no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one pipeline latency sample.
func (m *Metrics) Observe(d time.Duration) {
	if m == nil || !m.enableLatency {
		return
	}
	atomic.AddUint64(&m.latency.buckets[bucketIndex(d)], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricAuthenticateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.latency.buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBucketBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
