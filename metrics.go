package trustgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID uint16

const (
	// MetricAuthSuccess counts fully completed authentications.
	MetricAuthSuccess MetricID = iota
	// MetricAuthFailure counts bad-credential rejections.
	MetricAuthFailure
	// MetricAuthRateLimited counts requests denied by the limiter.
	MetricAuthRateLimited
	// MetricLockoutTriggered counts automatic transitions to BLOCKED.
	MetricLockoutTriggered
	// MetricAccountUnlocked counts administrative unlocks.
	MetricAccountUnlocked
	// MetricStatusChanged counts administrative status changes.
	MetricStatusChanged
	// MetricSessionOpened counts session rows inserted.
	MetricSessionOpened
	// MetricSessionClosed counts logouts and forced closes.
	MetricSessionClosed
	// MetricSessionSwept counts rows removed by the expiry sweep.
	MetricSessionSwept
	// MetricTokenRevoked counts explicit revocations.
	MetricTokenRevoked
	// MetricRevocationSwept counts ledger entries purged after expiry.
	MetricRevocationSwept
	// MetricValidateSuccess counts accepted session tokens.
	MetricValidateSuccess
	// MetricValidateRejected counts rejected session tokens of any cause.
	MetricValidateRejected
	// MetricMFARequired counts logins deferred to a second factor.
	MetricMFARequired
	// MetricMFASuccess counts accepted TOTP codes.
	MetricMFASuccess
	// MetricMFAFailure counts rejected second-factor attempts.
	MetricMFAFailure
	// MetricRecoveryCodeUsed counts consumed recovery codes.
	MetricRecoveryCodeUsed
	// MetricRecoveryCodesRegenerated counts recovery-set rotations.
	MetricRecoveryCodesRegenerated
	// MetricResetRequested counts issued password-reset tokens.
	MetricResetRequested
	// MetricResetCompleted counts successful password resets.
	MetricResetCompleted
	// MetricResetFailed counts rejected reset attempts.
	MetricResetFailed
	// MetricRegisterSuccess counts created principals.
	MetricRegisterSuccess
	// MetricRegisterDuplicate counts registrations rejected as duplicates.
	MetricRegisterDuplicate
	// MetricValidateLatency is the histogram slot for ValidateSessionToken
	// latency.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds cache-line-padded atomic counters and an optional latency
// histogram for the validation hot path. All operations are no-ops when
// disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recording.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments the counter for id by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a validation latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histograms.
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
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
