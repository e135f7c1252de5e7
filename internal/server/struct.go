package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ytqa-go/internal/qa"
	"github.com/54b3r/ytqa-go/internal/tasks"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full answer generation.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// TriggerLimit is the per-IP budget for POST /transcript/. Zero fields
	// default to 0.2 requests/second with a burst of 5.
	TriggerLimit RouteLimit
	// AskLimit is the per-IP budget for GET /transcript/ask. Zero fields
	// default to 1 request/second with a burst of 10.
	AskLimit RouteLimit
	// CORSOrigins lists the browser origins allowed to call the API.
	// An entry of "*" allows any origin.
	CORSOrigins []string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the domain components the handlers call.
type Deps struct {
	// Transcripts fetches transcripts for POST /transcript/.
	Transcripts TranscriptFetcher
	// Queue accepts background ingestion requests.
	Queue IngestQueue
	// Tasks reads ingestion status.
	Tasks TaskReader
	// QA answers questions about indexed videos.
	QA Answerer
}

// TranscriptFetcher retrieves the transcript of a video.
// *transcript.SupadataClient satisfies it.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// IngestQueue schedules background ingestion. *ingestion.Dispatcher satisfies it.
type IngestQueue interface {
	// Enqueue schedules transcript for ingestion under videoID.
	Enqueue(videoID, transcript string) error
	// Queued reports whether videoID is waiting or running.
	Queued(videoID string) bool
}

// TaskReader reads ingestion status. *tasks.Registry satisfies it.
type TaskReader interface {
	Get(videoID string) tasks.Task
}

// Answerer answers questions about an indexed video. *qa.Service satisfies it.
type Answerer interface {
	Answer(ctx context.Context, videoID, question string) (*qa.Answer, error)
}

// Server is the HTTP server that exposes transcript ingestion and question
// answering.
type Server struct {
	// deps are the domain components behind the handlers.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// transcriptRequest is the optional JSON body for POST /transcript/.
type transcriptRequest struct {
	// VideoID is a YouTube video ID or URL.
	VideoID string `json:"video_id"`
}

// transcriptResponse is the JSON response for POST /transcript/.
type transcriptResponse struct {
	// VideoID is the normalised video identifier.
	VideoID string `json:"video_id,omitempty"`
	// Status is the ingestion status after the request.
	Status tasks.Status `json:"status,omitempty"`
	// Transcript is the full transcript when already indexed, or a preview
	// when ingestion was just scheduled.
	Transcript string `json:"transcript,omitempty"`
	// Message is a human-readable summary of the outcome.
	Message string `json:"message,omitempty"`
}

// detailResponse is the error body used by the ask route.
type detailResponse struct {
	// Detail describes the failure.
	Detail string `json:"detail"`
}
