package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics holds all Prometheus metrics owned by the retrieval engine.
// A single instance is created in NewEngine and registered against the
// injected registry so unit tests stay hermetic.
type engineMetrics struct {
	// retrievalsTotal counts completed retrievals, partitioned by the strategy
	// that produced the final result set ("semantic", "ingredient", "keyword",
	// or "none").
	retrievalsTotal *prometheus.CounterVec

	// retrievalSeconds records the wall-clock duration of the full fallback
	// chain per retrieval.
	retrievalSeconds *prometheus.HistogramVec

	// indexBuildSeconds records the duration of full index builds. Builds are
	// rare (first use or explicit rebuild) but expensive.
	indexBuildSeconds prometheus.Histogram

	// indexSize is the number of recipes in the current embedding index.
	indexSize prometheus.Gauge

	// indexSkippedRows is the number of corpus rows the last build skipped
	// because their embedding call failed. A non-zero steady value points at
	// systematic embedding failures.
	indexSkippedRows prometheus.Gauge
}

// newEngineMetrics registers all engine metrics against reg and returns the
// populated engineMetrics.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)

	return &engineMetrics{
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealy",
			Subsystem: "rag",
			Name:      "retrievals_total",
			Help:      "Total number of retrievals completed, partitioned by producing strategy.",
		}, []string{"strategy"}),

		retrievalSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mealy",
			Subsystem: "rag",
			Name:      "retrieval_duration_seconds",
			Help:      "Wall-clock duration of the retrieval fallback chain.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"strategy"}),

		indexBuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mealy",
			Subsystem: "rag",
			Name:      "index_build_duration_seconds",
			Help:      "Duration of full embedding index builds.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600},
		}),

		indexSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mealy",
			Subsystem: "rag",
			Name:      "index_size",
			Help:      "Number of recipes in the current embedding index.",
		}),

		indexSkippedRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mealy",
			Subsystem: "rag",
			Name:      "index_skipped_rows",
			Help:      "Corpus rows skipped by the last index build due to embedding failures.",
		}),
	}
}

// observeRetrieval records one completed retrieval.
func (m *engineMetrics) observeRetrieval(strategy Strategy, d time.Duration) {
	m.retrievalsTotal.WithLabelValues(string(strategy)).Inc()
	m.retrievalSeconds.WithLabelValues(string(strategy)).Observe(d.Seconds())
}
