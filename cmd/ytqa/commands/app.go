package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ytqa-go/internal/config"
	"github.com/54b3r/ytqa-go/internal/embedder"
	"github.com/54b3r/ytqa-go/internal/ingestion"
	"github.com/54b3r/ytqa-go/internal/provider"
	"github.com/54b3r/ytqa-go/internal/qa"
	"github.com/54b3r/ytqa-go/internal/rag"
	"github.com/54b3r/ytqa-go/internal/server"
	"github.com/54b3r/ytqa-go/internal/store"
	"github.com/54b3r/ytqa-go/internal/tasks"
	"github.com/54b3r/ytqa-go/internal/transcript"
)

// app holds the components shared by serve, ingest, and ask.
type app struct {
	// fetcher retrieves transcripts from Supadata.
	fetcher *transcript.SupadataClient
	// index is the vector index engine selected by INDEX_BACKEND.
	index rag.VectorStore
	// registry tracks ingestion status per video.
	registry *tasks.Registry
	// pipeline ingests transcripts into index.
	pipeline *ingestion.Pipeline
	// qa answers questions against index.
	qa *qa.Service
	// pingers check the index and embedding provider for readiness.
	pingers []server.Pinger
	// closers run in reverse order on Close.
	closers []func()
}

// buildApp constructs every shared component from s. reg receives the
// pipeline metrics; pass nil outside the server.
func buildApp(ctx context.Context, s *config.Settings, reg prometheus.Registerer, log *slog.Logger) (*app, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	a := &app{}

	fetcher, err := transcript.NewSupadataClient(&transcript.SupadataConfig{
		Endpoint: s.Transcript.Endpoint,
		APIKey:   s.Transcript.APIKey,
		Language: s.Transcript.Language,
		Timeout:  s.Transcript.Timeout,
	})
	if err != nil {
		return nil, err
	}
	a.fetcher = fetcher

	embCfg := s.EmbedderConfig()
	if err := embedder.Validate(embCfg, log); err != nil {
		return nil, err
	}
	rawEmb, err := embedder.New(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	batchCfg := s.BatcherConfig()
	batchCfg.Logger = log
	batchCfg.MetricsRegistry = reg
	batcher, err := embedder.NewBatcher(rawEmb, batchCfg)
	if err != nil {
		return nil, err
	}
	a.pingers = append(a.pingers, server.NewEmbedderPinger(rawEmb, embCfg.Provider))
	log.Info("embedder initialised",
		slog.String("provider", embCfg.Provider),
		slog.String("model", embCfg.Model),
	)

	if err := a.openIndex(ctx, s, embedder.DefaultDimensions(embCfg), log); err != nil {
		a.Close()
		return nil, err
	}

	registry, stopRegistry := tasks.NewRegistry(s.Ingest.TaskTTL)
	a.registry = registry
	a.closers = append(a.closers, stopRegistry)

	a.pipeline, err = ingestion.NewPipeline(batcher, a.index, registry, &ingestion.Config{
		ChunkSize:       s.Ingest.ChunkSize,
		ChunkOverlap:    s.Ingest.ChunkOverlap,
		BatchSize:       s.Ingest.BatchSize,
		Pacing:          s.Ingest.Pacing,
		Language:        s.Transcript.Language,
		Logger:          log,
		MetricsRegistry: reg,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	retriever, err := rag.NewRetriever(batcher, a.index, rag.DefaultTopK, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	chat, err := newChatModel(ctx, s, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.qa, err = qa.NewService(retriever, registry, chat, &qa.Config{
		TopK:             rag.DefaultTopK,
		MaxContextTokens: s.Model.MaxContextTokens,
		Logger:           log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openIndex opens the index engine named by INDEX_BACKEND.
func (a *app) openIndex(ctx context.Context, s *config.Settings, dims int, log *slog.Logger) error {
	switch s.Index.Backend {
	case config.IndexSQLite:
		path, err := store.SQLitePath(s.Index.Path)
		if err != nil {
			return err
		}
		idx, err := store.OpenSQLite(path)
		if err != nil {
			return err
		}
		a.index = idx
		a.pingers = append(a.pingers, server.NewIndexPinger(idx, config.IndexSQLite))
		log.Info("sqlite index ready", slog.String("path", path))

	case config.IndexBadger:
		dir := store.BadgerPath(s.Index.Path)
		idx, err := store.OpenBadger(dir, false, log)
		if err != nil {
			return err
		}
		a.index = idx
		a.pingers = append(a.pingers, server.NewIndexPinger(idx, config.IndexBadger))
		log.Info("badger index ready", slog.String("path", dir))

	case config.IndexQdrant:
		qcfg := s.QdrantConfig(dims)
		idx, err := rag.NewQdrantStore(ctx, qcfg)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qcfg.Host, qcfg.Port, err)
		}
		a.index = idx
		a.pingers = append(a.pingers, server.NewQdrantPinger(idx.Client()))
		log.Info("qdrant index ready",
			slog.String("host", qcfg.Host),
			slog.Int("port", qcfg.Port),
			slog.String("collection", qcfg.Collection),
		)

	default:
		return fmt.Errorf("unknown index backend %q", s.Index.Backend)
	}

	a.closers = append(a.closers, func() {
		if err := a.index.Close(); err != nil {
			log.Warn("index close failed", slog.Any("error", err))
		}
	})
	return nil
}

// newChatModel constructs the chat model selected by MODEL_PROVIDER.
func newChatModel(ctx context.Context, s *config.Settings, log *slog.Logger) (model.BaseChatModel, error) {
	cfg := s.ProviderConfig()
	chat, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return chat, nil
}

// Close releases every resource opened by buildApp.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
