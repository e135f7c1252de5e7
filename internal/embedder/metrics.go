package embedder

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch result label values.
const (
	batchOK        = "ok"
	batchExhausted = "exhausted"
	batchCancelled = "cancelled"
)

// batcherMetrics holds the Prometheus metrics owned by a Batcher.
type batcherMetrics struct {
	// attemptsTotal counts provider calls by result: "ok", the HTTP status
	// code of a StatusError, or "error" for transport and shape failures.
	attemptsTotal *prometheus.CounterVec
	// batchesTotal counts batches by final result.
	batchesTotal *prometheus.CounterVec
}

// newBatcherMetrics registers the batcher metrics against reg. A nil reg
// uses a private registry.
func newBatcherMetrics(reg prometheus.Registerer) *batcherMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &batcherMetrics{
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "embedding",
			Name:      "attempts_total",
			Help:      "Embedding provider calls, partitioned by result.",
		}, []string{"result"}),

		batchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "embedding",
			Name:      "batches_total",
			Help:      "Embedding batches, partitioned by final result.",
		}, []string{"result"}),
	}
}

// attemptResult returns the attempts_total label for err.
func attemptResult(err error) string {
	if err == nil {
		return batchOK
	}
	if code := statusCode(err); code != 0 {
		return strconv.Itoa(code)
	}
	return "error"
}
