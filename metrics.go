package authemu

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSignUp counts accounts created by signUp.
	MetricSignUp MetricID = iota
	// MetricSignInSuccess counts first-factor sign-ins that completed.
	MetricSignInSuccess
	// MetricSignInFailure counts sign-in attempts rejected with a bad request.
	MetricSignInFailure
	// MetricMfaPending counts sign-ins that stopped at an MFA pending credential.
	MetricMfaPending
	// MetricMfaEnrolled counts finalized second-factor enrollments.
	MetricMfaEnrolled
	// MetricMfaSignIn counts finalized second-factor sign-ins.
	MetricMfaSignIn
	// MetricIDTokenIssued counts ID tokens minted by any operation.
	MetricIDTokenIssued
	// MetricRefreshGranted counts successful refresh token grants.
	MetricRefreshGranted
	// MetricOobCodeIssued counts OOB codes created.
	MetricOobCodeIssued
	// MetricOobCodeRedeemed counts OOB codes consumed.
	MetricOobCodeRedeemed
	// MetricVerificationCodeIssued counts phone verification sessions opened.
	MetricVerificationCodeIssued
	// MetricUserCreated counts users created by any path.
	MetricUserCreated
	// MetricUserDeleted counts users removed by delete and batchDelete.
	MetricUserDeleted
	// MetricUserImported counts users written by batchCreate.
	MetricUserImported
	// MetricTenantCreated counts tenants created.
	MetricTenantCreated
	// MetricTenantDeleted counts tenants deleted.
	MetricTenantDeleted
	// MetricBadRequest counts operations that failed with KindBadRequest.
	MetricBadRequest
	// MetricNotImplemented counts operations that failed with KindNotImplemented.
	MetricNotImplemented
	// MetricInternalError counts operations that failed with KindInternal.
	MetricInternalError
	// MetricEventDropped counts operation events that never reached the sink.
	MetricEventDropped
	// MetricDispatchLatency is the latency histogram of every operation.
	MetricDispatchLatency
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

// Metrics holds lock-free counters and fixed-bucket latency histograms.
// A nil or disabled *Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histograms are
// present only when latency histograms are enabled.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a metrics set configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency buckets are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricDispatchLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricDispatchLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
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
		if id == MetricDispatchLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricDispatchLatency].buckets[i])
		}
		s.Histograms[MetricDispatchLatency] = buckets
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

// MetricsSnapshot returns the engine's metric snapshot.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// EventsDropped returns how many operation events were discarded because
// the event buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	var total uint64
	for _, n := range e.events.dropped() {
		total += n
	}
	return total
}

// EventsDroppedByOperation breaks EventsDropped down by operation.
func (e *Engine) EventsDroppedByOperation() map[OperationID]uint64 {
	if e == nil {
		return map[OperationID]uint64{}
	}
	return e.events.dropped()
}
