// Package metrics provides challenge counters for the clearance client.
//
// Every counter is kept twice: as a lock-free atomic for the in-process
// Snapshot the CLI prints, and as a Prometheus series for scraping.  Each
// Metrics value owns its own registry so tests and multiple clients never
// collide on the global default registerer.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels how the interceptor handled one request.
type Outcome string

const (
	OutcomePassthrough Outcome = "passthrough"
	OutcomeSolved      Outcome = "solved"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeFailed      Outcome = "failed"
)

// Metrics tracks aggregate statistics for the clearance client.  A nil
// *Metrics is valid and records nothing.
//
// Fields are uint64 and aligned to 64-bit boundaries to satisfy the
// requirements of sync/atomic on 32-bit platforms.
type Metrics struct {
	// TotalRequests is the number of requests that entered the interceptor.
	TotalRequests uint64
	Passthrough   uint64
	Solved        uint64
	Unsupported   uint64
	Failed        uint64

	startTime time.Time
	registry  *prometheus.Registry
	outcomes  *prometheus.CounterVec
	solveTime prometheus.Histogram
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total       uint64
	Passthrough uint64
	Solved      uint64
	Unsupported uint64
	Failed      uint64
}

// NewMetrics creates a Metrics instance with the start time set to now and a
// private Prometheus registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),
		registry:  reg,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_requests_total",
			Help: "Requests handled by the challenge interceptor, by outcome.",
		}, []string{"outcome"}),
		solveTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clearance_solve_duration_seconds",
			Help:    "Time from challenge detection to follow-up response, including the mandated delay.",
			Buckets: prometheus.ExponentialBucketsRange(0.25, 60, 12),
		}),
	}
}

// IncrementTotal atomically increments the total-requests counter.
func (m *Metrics) IncrementTotal() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.TotalRequests, 1)
}

// Record counts one request outcome.
func (m *Metrics) Record(o Outcome) {
	if m == nil {
		return
	}
	switch o {
	case OutcomePassthrough:
		atomic.AddUint64(&m.Passthrough, 1)
	case OutcomeSolved:
		atomic.AddUint64(&m.Solved, 1)
	case OutcomeUnsupported:
		atomic.AddUint64(&m.Unsupported, 1)
	case OutcomeFailed:
		atomic.AddUint64(&m.Failed, 1)
	}
	m.outcomes.WithLabelValues(string(o)).Inc()
}

// ObserveSolve records how long a successful solve took.
func (m *Metrics) ObserveSolve(d time.Duration) {
	if m == nil {
		return
	}
	m.solveTime.Observe(d.Seconds())
}

// RequestsPerSecond returns the average request rate since the Metrics
// instance was created.
func (m *Metrics) RequestsPerSecond() float64 {
	if m == nil {
		return 0
	}
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.TotalRequests)) / elapsed
}

// Snapshot returns a point-in-time copy of the counters.  The loads are not
// taken under a single lock, so the copy may be very slightly inconsistent,
// which is acceptable for monitoring purposes.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Total:       atomic.LoadUint64(&m.TotalRequests),
		Passthrough: atomic.LoadUint64(&m.Passthrough),
		Solved:      atomic.LoadUint64(&m.Solved),
		Unsupported: atomic.LoadUint64(&m.Unsupported),
		Failed:      atomic.LoadUint64(&m.Failed),
	}
}

// Registry exposes the Prometheus registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves m in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
