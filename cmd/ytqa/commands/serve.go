package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ytqa-go/internal/ingestion"
	"github.com/54b3r/ytqa-go/internal/logging"
	"github.com/54b3r/ytqa-go/internal/server"
	"github.com/54b3r/ytqa-go/internal/tracing"
)

// drainTimeout bounds how long shutdown waits for queued ingestions.
const drainTimeout = 30 * time.Second

// NewServeCmd constructs the `ytqa serve` command, which starts the HTTP
// server with background ingestion.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ytqa HTTP server",
		Long: `Start the ytqa HTTP server.

POST /transcript/ fetches a video's transcript and indexes it in the
background; GET /transcript/status/{video_id} reports progress and
GET /transcript/ask answers questions once indexing has completed.

Examples:
  ytqa serve
  ytqa serve --port 9090
  INDEX_BACKEND=badger ytqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger
			ctx = logging.WithLogger(ctx, log)

			if cmd.Flags().Changed("host") {
				settings.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Server.Port = port
			}

			log.Info("serve starting", slog.String("provider", settings.Model.Provider))

			// Setup Langfuse tracing: opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup(tracing.Config{
				Host:      settings.Tracing.Host,
				PublicKey: settings.Tracing.PublicKey,
				SecretKey: settings.Tracing.SecretKey,
			})
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			a, err := buildApp(ctx, settings, prometheus.DefaultRegisterer, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			dispatcher, err := ingestion.NewDispatcher(a.pipeline, &ingestion.DispatcherConfig{
				Workers:         settings.Ingest.Workers,
				Logger:          log,
				MetricsRegistry: prometheus.DefaultRegisterer,
				Tasks:           a.registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create dispatcher: %w", err)
			}
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
				defer cancel()
				if err := dispatcher.Close(drainCtx); err != nil {
					log.Warn("ingestion drain interrupted", slog.Any("error", err))
				}
			}()

			triggerLimit := server.RouteLimit{PerSecond: settings.Server.TriggerRateLimit, Burst: settings.Server.TriggerRateBurst}
			askLimit := server.RouteLimit{PerSecond: settings.Server.AskRateLimit, Burst: settings.Server.AskRateBurst}
			srv, err := server.New(server.Deps{
				Transcripts: a.fetcher,
				Queue:       dispatcher,
				Tasks:       a.registry,
				QA:          a.qa,
			}, &server.Config{
				Host:         settings.Server.Host,
				Port:         settings.Server.Port,
				Logger:       log,
				Pingers:      a.pingers,
				TriggerLimit: triggerLimit,
				AskLimit:     askLimit,
				CORSOrigins:  settings.Server.CORSOrigins,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (overrides SERVER_PORT)")

	return cmd
}
