package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ytqa-go/internal/rag"
)

// RetryPolicy decides how often a batch is attempted and how long to wait
// between attempts.
type RetryPolicy struct {
	// MaxAttempts is the number of tries per batch (default: 5).
	MaxAttempts int
	// UnavailableWait follows an HTTP 503, typically a cold model (default: 10s).
	UnavailableWait time.Duration
	// RateLimitedWait follows an HTTP 429 (default: 5s).
	RateLimitedWait time.Duration
	// DefaultWait follows any other failure, including transport errors (default: 2s).
	DefaultWait time.Duration
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		UnavailableWait: 10 * time.Second,
		RateLimitedWait: 5 * time.Second,
		DefaultWait:     2 * time.Second,
	}
}

// Wait returns the delay that follows a failed attempt with err.
func (p RetryPolicy) Wait(err error) time.Duration {
	switch statusCode(err) {
	case http.StatusServiceUnavailable:
		return p.UnavailableWait
	case http.StatusTooManyRequests:
		return p.RateLimitedWait
	default:
		return p.DefaultWait
	}
}

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	// BatchSize is the number of texts per provider call (default: 10).
	BatchSize int
	// Policy is the retry policy. Zero fields take DefaultRetryPolicy values.
	Policy RetryPolicy
	// AttemptTimeout bounds a single provider call (default: 120s).
	AttemptTimeout time.Duration
	// Logger records retries and exhausted batches. Defaults to slog.Default.
	Logger *slog.Logger
	// OnRetry, if set, is called after each failed attempt that will be
	// retried, with the attempt error and the wait before the next attempt.
	OnRetry func(err error, wait time.Duration)
	// MetricsRegistry receives the embedding metrics. Defaults to a private
	// registry so tests never collide.
	MetricsRegistry prometheus.Registerer
}

// Batcher wraps a rag.Embedder with fixed-size batching and per-batch
// retries. A batch that exhausts its attempts leaves nil vectors for its
// texts; the caller sees that in the returned rag.EmbedResult.
type Batcher struct {
	// embedder is the single-call provider.
	embedder rag.Embedder
	// batchSize is the number of texts per provider call.
	batchSize int
	// policy decides attempts and waits.
	policy RetryPolicy
	// attemptTimeout bounds each provider call.
	attemptTimeout time.Duration
	// log records retries.
	log *slog.Logger
	// onRetry observes scheduled retries.
	onRetry func(err error, wait time.Duration)
	// metrics counts attempts and batch outcomes.
	metrics *batcherMetrics
}

var _ rag.BatchEmbedder = (*Batcher)(nil)

// NewBatcher constructs a Batcher around e.
func NewBatcher(e rag.Embedder, cfg *BatcherConfig) (*Batcher, error) {
	if e == nil {
		return nil, errors.New("embedder: batcher requires an embedder")
	}
	if cfg == nil {
		cfg = &BatcherConfig{}
	}

	def := DefaultRetryPolicy()
	policy := cfg.Policy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.UnavailableWait <= 0 {
		policy.UnavailableWait = def.UnavailableWait
	}
	if policy.RateLimitedWait <= 0 {
		policy.RateLimitedWait = def.RateLimitedWait
	}
	if policy.DefaultWait <= 0 {
		policy.DefaultWait = def.DefaultWait
	}

	b := &Batcher{
		embedder:       e,
		batchSize:      cfg.BatchSize,
		policy:         policy,
		attemptTimeout: cfg.AttemptTimeout,
		log:            cfg.Logger,
		onRetry:        cfg.OnRetry,
		metrics:        newBatcherMetrics(cfg.MetricsRegistry),
	}
	if b.batchSize <= 0 {
		b.batchSize = 10
	}
	if b.attemptTimeout <= 0 {
		b.attemptTimeout = defaultTimeout
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b, nil
}

// EmbedDocuments embeds texts in batches. Batches that keep failing are
// skipped rather than aborting the call; cancellation stops at the next
// attempt boundary and leaves the remaining vectors nil.
func (b *Batcher) EmbedDocuments(ctx context.Context, texts []string) rag.EmbedResult {
	res := rag.EmbedResult{Vectors: make([][]float32, len(texts))}

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))

		vecs, err := b.embedBatch(ctx, texts[start:end])
		if err != nil {
			res.Err = err
			b.log.Warn("embedder: batch failed, skipping",
				slog.Int("start", start),
				slog.Int("size", end-start),
				slog.Any("error", err),
			)
			if ctx.Err() != nil {
				return res
			}
			continue
		}

		for i, v := range vecs {
			if len(v) == 0 {
				continue
			}
			res.Vectors[start+i] = v
			res.Embedded++
		}
	}

	return res
}

// EmbedQuery embeds a single text, returning an empty vector on failure.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) []float32 {
	res := b.EmbedDocuments(ctx, []string{text})
	if res.Embedded == 0 {
		return []float32{}
	}
	return res.Vectors[0]
}

// statusBackOff is a backoff.BackOff whose next wait follows the policy for
// the most recent attempt error.
type statusBackOff struct {
	policy RetryPolicy
	last   error
}

func (s *statusBackOff) NextBackOff() time.Duration { return s.policy.Wait(s.last) }

func (s *statusBackOff) Reset() { s.last = nil }

// embedBatch calls the provider up to MaxAttempts times, waiting between
// attempts according to the policy. It does not wait after the last attempt.
func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	bo := &statusBackOff{policy: b.policy}
	attempts := 0

	operation := func() ([][]float32, error) {
		attempts++
		vecs, err := b.attempt(ctx, batch)
		b.metrics.attemptsTotal.WithLabelValues(attemptResult(err)).Inc()
		bo.last = err
		return vecs, err
	}

	notify := func(err error, wait time.Duration) {
		b.log.Debug("embedder: attempt failed, retrying",
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
		if b.onRetry != nil {
			b.onRetry(err, wait)
		}
	}

	vecs, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(b.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	switch {
	case err == nil:
		b.metrics.batchesTotal.WithLabelValues(batchOK).Inc()
		return vecs, nil
	case ctx.Err() != nil:
		b.metrics.batchesTotal.WithLabelValues(batchCancelled).Inc()
		return nil, fmt.Errorf("embedder: cancelled after %d attempts: %w", attempts, context.Cause(ctx))
	default:
		b.metrics.batchesTotal.WithLabelValues(batchExhausted).Inc()
		return nil, fmt.Errorf("embedder: gave up after %d attempts: %w", attempts, err)
	}
}

// attempt runs one bounded provider call and checks the result shape.
func (b *Batcher) attempt(ctx context.Context, batch []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, b.attemptTimeout)
	defer cancel()

	vecs, err := b.embedder.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(batch), len(vecs))
	}
	return vecs, nil
}
