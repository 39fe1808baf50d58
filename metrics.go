package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginRateLimited
	MetricCaptchaRequired
	MetricCaptchaFailure
	MetricSessionIssued
	MetricSessionRefreshed
	MetricSessionSuperseded
	MetricSessionExpired
	MetricSessionInvalid
	MetricLogout
	MetricCsrfIssued
	MetricCsrfRejected
	MetricTOTPRequired
	MetricTOTPSuccess
	MetricTOTPFailure
	MetricTOTPEnrolled
	MetricPasswordChanged
	MetricPasswordUpgraded
	MetricAccountRegistered
	MetricDocumentStored
	MetricDecryptFailure
	MetricBackendUnavailable
	// MetricValidateLatency is the only histogram; it times ValidateRequestSession.
	MetricValidateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:       "login_success",
	MetricLoginFailure:       "login_failure",
	MetricLoginLocked:        "login_locked",
	MetricLoginRateLimited:   "login_rate_limited",
	MetricCaptchaRequired:    "captcha_required",
	MetricCaptchaFailure:     "captcha_failure",
	MetricSessionIssued:      "session_issued",
	MetricSessionRefreshed:   "session_refreshed",
	MetricSessionSuperseded:  "session_superseded",
	MetricSessionExpired:     "session_expired",
	MetricSessionInvalid:     "session_invalid",
	MetricLogout:             "logout",
	MetricCsrfIssued:         "csrf_issued",
	MetricCsrfRejected:       "csrf_rejected",
	MetricTOTPRequired:       "totp_required",
	MetricTOTPSuccess:        "totp_success",
	MetricTOTPFailure:        "totp_failure",
	MetricTOTPEnrolled:       "totp_enrolled",
	MetricPasswordChanged:    "password_changed",
	MetricPasswordUpgraded:   "password_upgraded",
	MetricAccountRegistered:  "account_registered",
	MetricDocumentStored:     "document_stored",
	MetricDecryptFailure:     "decrypt_failure",
	MetricBackendUnavailable: "backend_unavailable",
	MetricValidateLatency:    "validate_latency",
}

// String returns the snake_case metric name used by the exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every metric in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricIDCount)
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the upper bounds, in milliseconds, of the first
// seven latency buckets. The eighth bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]float64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil or disabled Metrics ignores
// every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram of id. Only
// MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := float64(d.Milliseconds())
	for i, bound := range HistogramBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
