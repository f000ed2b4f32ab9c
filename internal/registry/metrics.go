package registry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// emaAlpha is the smoothing factor for the reconciliation duration average.
const emaAlpha = 0.2

// Snapshot is the point-in-time aggregate returned by Metrics().
type Snapshot struct {
	TrackedKeys              int
	OpenConflicts            int
	QueueDepth               int
	ActiveReconciliations    int
	ReconciliationsCompleted uint64
	ReconciliationsFailed    uint64
	ReconciliationsTimedOut  uint64
	ConflictsDetected        uint64
	ConflictsResolved        uint64
	ViolationsDetected       uint64
	// AvgReconcileDuration is an exponential moving average.
	AvgReconcileDuration time.Duration
}

// metrics tracks engine counters and mirrors them to Prometheus
// collectors. Counters are engine-internal truth; the collectors exist for
// scraping.
type metrics struct {
	mu        sync.Mutex
	completed uint64
	failed    uint64
	timedOut  uint64
	detected  uint64
	resolved  uint64
	violated  uint64
	avg       time.Duration
	hasAvg    bool

	promCompleted prometheus.Counter
	promFailed    prometheus.Counter
	promTimedOut  prometheus.Counter
	promDetected  prometheus.Counter
	promResolved  prometheus.Counter
	promDuration  prometheus.Histogram
}

// newMetrics registers the engine's collectors on reg. Each engine gets its
// own registerer so multiple engines can coexist in one process.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		promCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coherence_reconciliations_completed_total",
			Help: "Total number of successful reconciliation runs",
		}),
		promFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "coherence_reconciliations_failed_total",
			Help: "Total number of failed reconciliation runs (timeouts included)",
		}),
		promTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "coherence_reconciliations_timed_out_total",
			Help: "Total number of reconciliation runs finalized by timeout",
		}),
		promDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "coherence_conflicts_detected_total",
			Help: "Total number of conflicts detected",
		}),
		promResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "coherence_conflicts_resolved_total",
			Help: "Total number of conflicts resolved",
		}),
		promDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coherence_reconciliation_duration_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *metrics) reconciliationCompleted(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed++
	if m.hasAvg {
		m.avg = time.Duration(emaAlpha*float64(elapsed) + (1-emaAlpha)*float64(m.avg))
	} else {
		m.avg = elapsed
		m.hasAvg = true
	}

	m.promCompleted.Inc()
	m.promDuration.Observe(elapsed.Seconds())
}

func (m *metrics) reconciliationFailed(timedOut bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed++
	m.promFailed.Inc()
	if timedOut {
		m.timedOut++
		m.promTimedOut.Inc()
	}
}

func (m *metrics) conflictDetected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detected++
	m.promDetected.Inc()
}

func (m *metrics) conflictResolved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved++
	m.promResolved.Inc()
}

func (m *metrics) violationDetected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violated++
}

func (m *metrics) avgDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avg
}

func (m *metrics) fill(s *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ReconciliationsCompleted = m.completed
	s.ReconciliationsFailed = m.failed
	s.ReconciliationsTimedOut = m.timedOut
	s.ConflictsDetected = m.detected
	s.ConflictsResolved = m.resolved
	s.ViolationsDetected = m.violated
	s.AvgReconcileDuration = m.avg
}
