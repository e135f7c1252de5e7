package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded on the runs_total counter.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

// pipelineMetrics holds the Prometheus metrics owned by the ingestion pipeline.
type pipelineMetrics struct {
	// runsTotal counts finished ingestion runs partitioned by outcome.
	runsTotal *prometheus.CounterVec

	// chunksTotal counts chunks partitioned by result: "stored" or "skipped".
	chunksTotal *prometheus.CounterVec

	// durationSeconds records the wall-clock duration of each run.
	durationSeconds *prometheus.HistogramVec
}

// newPipelineMetrics registers the ingestion metrics against reg.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Total number of transcript chunks processed, partitioned by result.",
		}, []string{"result"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ytqa",
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of ingestion runs from lock acquisition to completion.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
	}
}

// newQueuedGauge registers the dispatcher's queue depth gauge against reg.
func newQueuedGauge(reg prometheus.Registerer) prometheus.Gauge {
	return promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "ytqa",
		Subsystem: "ingestion",
		Name:      "queued",
		Help:      "Number of videos queued or running in the background dispatcher.",
	})
}
