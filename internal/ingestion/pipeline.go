// Package ingestion turns a video transcript into indexed, embedded chunks.
//
// The Pipeline wipes the index, splits the transcript, embeds it in batches
// and stores the vectors, reporting progress through a tasks.Registry. Only
// one video is resident in the index at a time. The Dispatcher runs
// ingestions in the background on a bounded worker pool.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/ytqa-go/internal/rag"
	"github.com/54b3r/ytqa-go/internal/tasks"
)

// ErrEmptyTranscript is returned when the transcript is empty or blank.
var ErrEmptyTranscript = errors.New("ingestion: empty transcript")

// Default pipeline settings.
const (
	DefaultBatchSize = 10
	DefaultPacing    = 400 * time.Millisecond
	DefaultLanguage  = "en"
	DefaultSource    = "youtube"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Zero disables overlap; a negative value selects the default of 80.
	ChunkOverlap int

	// BatchSize is the number of chunks embedded and stored per step.
	// Defaults to 10 if zero.
	BatchSize int

	// Pacing is the minimum interval between batches. Zero disables pacing.
	Pacing time.Duration

	// Language is recorded in every chunk's metadata. Defaults to "en".
	Language string

	// Source is recorded in every chunk's metadata. Defaults to "youtube".
	Source string

	// Logger receives pipeline logs. Defaults to slog.Default().
	Logger *slog.Logger

	// MetricsRegistry receives the pipeline metrics. Defaults to a private
	// registry so tests never collide.
	MetricsRegistry prometheus.Registerer
}

// DefaultConfig returns a Config populated with the default settings,
// including the 400ms pacing.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		BatchSize:    DefaultBatchSize,
		Pacing:       DefaultPacing,
		Language:     DefaultLanguage,
		Source:       DefaultSource,
	}
}

// Pipeline orchestrates the clear → chunk → embed → store flow for one
// transcript at a time.
type Pipeline struct {
	// chunker splits transcripts into windows.
	chunker *Chunker

	// embedder converts chunk text into vectors with retries.
	embedder rag.BatchEmbedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// tasks records per-video progress.
	tasks *tasks.Registry

	// cfg holds the resolved pipeline configuration.
	cfg Config

	// limiter spaces batches by cfg.Pacing; nil when pacing is disabled.
	limiter *rate.Limiter

	// log is the pipeline logger.
	log *slog.Logger

	// metrics holds the pipeline's Prometheus metrics.
	metrics *pipelineMetrics

	// mu serialises ingestion runs so that the index only ever holds one video.
	mu sync.Mutex
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// A nil cfg selects DefaultConfig().
func NewPipeline(embedder rag.BatchEmbedder, store rag.VectorStore, registry *tasks.Registry, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("ingestion: task registry must not be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := *cfg
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MetricsRegistry == nil {
		c.MetricsRegistry = prometheus.NewRegistry()
	}

	var limiter *rate.Limiter
	if c.Pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(c.Pacing), 1)
	}

	return &Pipeline{
		chunker:  NewChunker(c.ChunkSize, c.ChunkOverlap),
		embedder: embedder,
		store:    store,
		tasks:    registry,
		cfg:      c,
		limiter:  limiter,
		log:      c.Logger,
		metrics:  newPipelineMetrics(c.MetricsRegistry),
	}, nil
}

// Ingest indexes transcript under videoID, replacing whatever the index held
// before. A blank transcript marks the task "error" and returns
// ErrEmptyTranscript without touching the index. Any other failure marks the
// task "failed", keeping the last reported progress.
func (p *Pipeline) Ingest(ctx context.Context, videoID, transcript string) error {
	log := p.log.With(slog.String("video_id", videoID))

	if strings.TrimSpace(transcript) == "" {
		p.tasks.Update(videoID, func(t *tasks.Task) {
			t.Status = tasks.StatusError
			t.Progress = 0
			t.Transcript = ""
			t.Error = "empty transcript"
		})
		p.metrics.runsTotal.WithLabelValues(outcomeRejected).Inc()
		log.Warn("ingestion: rejected empty transcript")
		return ErrEmptyTranscript
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	p.tasks.Update(videoID, func(t *tasks.Task) {
		t.Status = tasks.StatusProcessing
		t.Progress = 0
		t.Transcript = ""
		t.Error = ""
		t.Chunks = 0
		t.SkippedChunks = 0
	})
	log.Info("ingestion: started", slog.Int("transcript_chars", len(transcript)))

	stored, skipped, err := p.run(ctx, videoID, transcript, log)
	p.metrics.chunksTotal.WithLabelValues("stored").Add(float64(stored))
	p.metrics.chunksTotal.WithLabelValues("skipped").Add(float64(skipped))

	if err != nil {
		p.tasks.Update(videoID, func(t *tasks.Task) {
			t.Status = tasks.StatusFailed
			t.Error = err.Error()
			t.Chunks = stored
			t.SkippedChunks = skipped
		})
		p.metrics.runsTotal.WithLabelValues(outcomeFailed).Inc()
		p.metrics.durationSeconds.WithLabelValues(outcomeFailed).Observe(time.Since(start).Seconds())
		log.Error("ingestion: failed", slog.Any("error", err))
		return err
	}

	p.tasks.Update(videoID, func(t *tasks.Task) {
		t.Status = tasks.StatusCompleted
		t.Progress = 100
		t.Transcript = transcript
		t.Error = ""
		t.Chunks = stored
		t.SkippedChunks = skipped
	})
	p.metrics.runsTotal.WithLabelValues(outcomeCompleted).Inc()
	p.metrics.durationSeconds.WithLabelValues(outcomeCompleted).Observe(time.Since(start).Seconds())
	log.Info("ingestion: completed",
		slog.Int("chunks", stored),
		slog.Int("skipped_chunks", skipped),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// run performs the clear, chunk and batch steps. It returns how many chunks
// were stored and how many were skipped because their batch failed to embed.
func (p *Pipeline) run(ctx context.Context, videoID, transcript string, log *slog.Logger) (stored, skipped int, err error) {
	p.clear(ctx, videoID, log)

	docs, err := p.chunker.Split(transcript, map[string]string{
		rag.MetaVideoID:  videoID,
		rag.MetaLanguage: p.cfg.Language,
		rag.MetaSource:   p.cfg.Source,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(docs) == 0 {
		return 0, 0, fmt.Errorf("ingestion: transcript produced no chunks")
	}

	total := len(docs)
	progress := 0
	var lastEmbedErr error

	for start := 0; start < total; start += p.cfg.BatchSize {
		if err := p.pace(ctx); err != nil {
			return stored, skipped, fmt.Errorf("ingestion: pacing interrupted: %w", err)
		}

		end := min(start+p.cfg.BatchSize, total)
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}

		res := p.embedder.EmbedDocuments(ctx, texts)
		if ctx.Err() != nil {
			cause := res.Err
			if cause == nil {
				cause = ctx.Err()
			}
			return stored, skipped, fmt.Errorf("ingestion: embedding interrupted: %w", cause)
		}

		keepDocs := make([]rag.Document, 0, len(batch))
		keepVecs := make([][]float32, 0, len(batch))
		for i, vec := range res.Vectors {
			if vec == nil {
				continue
			}
			keepDocs = append(keepDocs, batch[i])
			keepVecs = append(keepVecs, vec)
		}

		if dropped := len(batch) - len(keepDocs); dropped > 0 {
			skipped += dropped
			lastEmbedErr = res.Err
			log.Warn("ingestion: skipping chunks that could not be embedded",
				slog.Int("batch_start", start),
				slog.Int("skipped", dropped),
				slog.Any("error", res.Err),
			)
		}

		if len(keepDocs) > 0 {
			if err := p.store.Upsert(ctx, keepDocs, keepVecs); err != nil {
				return stored, skipped, fmt.Errorf("ingestion: store batch at chunk %d: %w", start, err)
			}
			stored += len(keepDocs)
		}

		pct := min(int(math.Round(float64(end)/float64(total)*100)), 100)
		if pct > progress {
			progress = pct
			p.tasks.Update(videoID, func(t *tasks.Task) { t.Progress = pct })
		}
		log.Debug("ingestion: batch stored",
			slog.Int("processed", end),
			slog.Int("total", total),
			slog.Int("progress", progress),
		)
	}

	if stored == 0 {
		return 0, skipped, fmt.Errorf("ingestion: none of %d chunks could be embedded: %w", total, lastEmbedErr)
	}
	return stored, skipped, nil
}

// clear deletes every record in the index. Failures are logged and tolerated.
// After a successful clear, other videos' completed tasks are reset so their
// next trigger re-indexes them.
func (p *Pipeline) clear(ctx context.Context, videoID string, log *slog.Logger) {
	ids, err := p.store.ListIDs(ctx)
	if err != nil {
		log.Warn("ingestion: index clear skipped", slog.Any("error", err))
		return
	}
	if len(ids) > 0 {
		if err := p.store.Delete(ctx, ids); err != nil {
			log.Warn("ingestion: index clear skipped", slog.Any("error", err))
			return
		}
		log.Info("ingestion: wiped index for fresh start", slog.Int("records", len(ids)))
	}
	if n := p.tasks.ResetCompletedExcept(videoID); n > 0 {
		log.Info("ingestion: reset evicted videos", slog.Int("videos", n))
	}
}

// pace blocks until the next batch may start.
func (p *Pipeline) pace(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
