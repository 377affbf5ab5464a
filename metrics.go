package goCreds

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricRegisterFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLogout
	MetricLogoutFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricTemporaryLoginSuccess
	MetricTemporaryLoginFailure
	MetricAccessVerifyFailure
	MetricEmailConfirmRequest
	MetricEmailConfirmSuccess
	MetricEmailConfirmFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricVerificationRateLimited
	MetricDeliveryFailure
	MetricPasswordRehash
	// Latency histograms. Observe ignores IDs outside this block.
	MetricLoginLatency
	MetricRefreshLatency
	MetricVerifyAccessLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of every histogram bucket but
// the last, which is +Inf.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount  = len(latencyBounds) + 1
	firstLatencyID   = MetricLoginLatency
	latencyMetricNum = int(metricIDCount - firstLatencyID)
)

func isLatencyMetric(id MetricID) bool {
	return id >= firstLatencyID && id < metricIDCount
}

// counterSlot keeps each counter on its own cache line so hot counters
// updated from different cores do not contend.
type counterSlot struct {
	atomic.Uint64
	_ [56]byte
}

type latencyHistogram [histBucketCount]atomic.Uint64

func (h *latencyHistogram) observe(d time.Duration) {
	i := 0
	for i < len(latencyBounds) && d > latencyBounds[i] {
		i++
	}
	h[i].Add(1)
}

func (h *latencyHistogram) load() []uint64 {
	out := make([]uint64, histBucketCount)
	for i := range h {
		out[i] = h[i].Load()
	}
	return out
}

// Metrics is a set of lock-free counters and fixed-bucket latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [firstLatencyID]counterSlot
	latency       [latencyMetricNum]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are non-cumulative, upper bounds 5,10,25,50,100,250,500ms,+Inf.
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

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.enableLatency }

// Inc adds one to counter id. Latency IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m.Enabled() && id < firstLatencyID {
		m.counters[id].Add(1)
	}
}

// Observe records d into histogram id when latency histograms are enabled.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m.LatencyEnabled() && isLatencyMetric(id) {
		m.latency[id-firstLatencyID].observe(d)
	}
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= firstLatencyID {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies all counters, and the histograms when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := range firstLatencyID {
		snap.Counters[id] = m.counters[id].Load()
	}
	if m.enableLatency {
		for i := range m.latency {
			snap.Histograms[firstLatencyID+MetricID(i)] = m.latency[i].load()
		}
	}
	return snap
}
