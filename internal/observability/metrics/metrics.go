package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics exposes the commission engine's operational instruments on
// the /metrics endpoint. These are the primary reconciliation signals.
type EngineMetrics struct {
	runs           *prometheus.CounterVec
	recordsCreated prometheus.Counter
	recordsPresent prometheus.Counter
	runDuration    prometheus.Histogram
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "referra",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Commission engine runs by outcome.",
		}, []string{"outcome"}),
		recordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "referra",
			Subsystem: "engine",
			Name:      "records_created_total",
			Help:      "Commission records newly created.",
		}),
		recordsPresent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "referra",
			Subsystem: "engine",
			Name:      "records_already_present_total",
			Help:      "Commission writes folded into existing records.",
		}),
		runDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "referra",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Commission engine run duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *EngineMetrics) ObserveRun(outcome string, created, alreadyPresent int, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.recordsCreated.Add(float64(created))
	m.recordsPresent.Add(float64(alreadyPresent))
	m.runDuration.Observe(duration.Seconds())
}
