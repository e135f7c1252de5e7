// Package server implements the HTTP API that triggers transcript ingestion,
// reports its progress, and answers questions about indexed videos.
// The server is started by the `ytqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ytqa-go/internal/logging"
)

// New constructs a Server from the provided dependencies and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Transcripts == nil || deps.Queue == nil || deps.Tasks == nil || deps.QA == nil {
		return nil, errors.New("server: transcripts, queue, tasks and qa must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	cfg.TriggerLimit = cfg.TriggerLimit.withDefaults(defaultTriggerLimit)
	cfg.AskLimit = cfg.AskLimit.withDefaults(defaultAskLimit)
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	metrics := newServerMetrics(cfg.MetricsRegistry)
	rl, stopRL := newRateLimiter(map[string]RouteLimit{
		budgetTrigger: cfg.TriggerLimit,
		budgetAsk:     cfg.AskLimit,
	}, metrics.rateLimitedTotal, log)

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: metrics,
		stopRL:  stopRL,
	}

	mux := http.NewServeMux()
	s.route(mux, "GET /{$}", "root", http.HandlerFunc(s.handleRoot))
	trigger := rl.limit(budgetTrigger, http.HandlerFunc(s.handleTranscript))
	s.route(mux, "POST /transcript", "transcript", trigger)
	s.route(mux, "POST /transcript/{$}", "transcript", trigger)
	// Progress polling is never rate limited.
	s.route(mux, "GET /transcript/status/{video_id}", "status", http.HandlerFunc(s.handleStatus))
	s.route(mux, "GET /transcript/ask", "ask", rl.limit(budgetAsk, http.HandlerFunc(s.handleAsk)))
	s.route(mux, "GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	handler := requestLogger(log, corsMiddleware(cfg.CORSOrigins, mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// route registers h under pattern, instrumented with the handler label name.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, s.metrics.instrument(name, h))
}

// Handler returns the fully wrapped HTTP handler. It is used by tests and by
// callers that embed the API in another server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleRoot handles GET / as a minimal liveness banner.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "API is running"})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}
