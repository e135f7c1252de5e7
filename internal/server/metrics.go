// Package server: metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Outcome label values for the transcript and ask routes.
const (
	outcomeOK        = "ok"
	outcomeNoContext = "no_context"
	outcomeNotReady  = "not_ready"
	outcomeCached    = "cached"
	outcomeQueued    = "queued"
	outcomeDuplicate = "duplicate"
	outcomeNotFound  = "not_found"
	outcomeInvalid   = "invalid"
	outcomeError     = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// transcriptRequestsTotal counts POST /transcript/ requests by outcome.
	transcriptRequestsTotal *prometheus.CounterVec

	// askRequestsTotal counts GET /transcript/ask requests by outcome.
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each ask request,
	// dominated by the chat completion call.
	askDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected with 429, by budget.
	rateLimitedTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default so unit tests stay hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		transcriptRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "transcript",
			Name:      "requests_total",
			Help:      "Total number of ingestion trigger requests, partitioned by outcome.",
		}, []string{"outcome"}),

		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of questions asked, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ytqa",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of question answering requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ytqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytqa",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter, partitioned by budget.",
		}, []string{"budget"}),
	}
}

// observeAsk records one ask request that started at start.
func (m *serverMetrics) observeAsk(outcome string, start time.Time) {
	m.askRequestsTotal.WithLabelValues(outcome).Inc()
	m.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// instrument wraps next so every request is counted and timed under the
// given handler label.
func (m *serverMetrics) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
