package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ytqa-go/internal/tasks"
)

var (
	// ErrAlreadyQueued is returned by Enqueue when the video is already
	// queued or being ingested.
	ErrAlreadyQueued = errors.New("ingestion: video already queued")

	// ErrQueueFull is returned by Enqueue when every worker already holds a
	// queued or running ingestion.
	ErrQueueFull = errors.New("ingestion: ingestion queue is full")

	// ErrDispatcherClosed is returned by Enqueue after Close.
	ErrDispatcherClosed = errors.New("ingestion: dispatcher closed")
)

// Ingester runs one ingestion synchronously. *Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, videoID, transcript string) error
}

// DispatcherConfig holds the settings for a Dispatcher.
type DispatcherConfig struct {
	// Workers is the worker pool size and so the maximum number of videos
	// queued or running at once. Runs themselves are serialised by the
	// pipeline. Defaults to 8 if zero.
	Workers int

	// Logger receives dispatcher logs. Defaults to slog.Default().
	Logger *slog.Logger

	// MetricsRegistry receives the queue depth gauge. Defaults to a private registry.
	MetricsRegistry prometheus.Registerer

	// Tasks, when set, has each accepted video marked processing at progress
	// 0 before its run starts, so a re-triggered failed video stops reporting
	// failed while it waits for the pipeline.
	Tasks *tasks.Registry
}

// Dispatcher runs ingestions in the background on an ants worker pool.
// A video is never queued twice: while one submission for a video is
// pending or running, further submissions for it return ErrAlreadyQueued.
type Dispatcher struct {
	// ingester performs each ingestion.
	ingester Ingester

	// pool executes submitted ingestions.
	pool *ants.Pool

	// ctx is the base context for background runs; cancel aborts them.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards inflight and closed.
	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	// wg tracks submitted runs.
	wg sync.WaitGroup

	// queued mirrors len(inflight).
	queued prometheus.Gauge

	// tasks receives the queued marker; nil disables it.
	tasks *tasks.Registry

	// log is the dispatcher logger.
	log *slog.Logger
}

// NewDispatcher constructs a Dispatcher that hands work to ingester.
func NewDispatcher(ingester Ingester, cfg *DispatcherConfig) (*Dispatcher, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingestion: ingester must not be nil")
	}
	if cfg == nil {
		cfg = &DispatcherConfig{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.MetricsRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("ingestion: create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ingester: ingester,
		pool:     pool,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
		queued:   newQueuedGauge(reg),
		tasks:    cfg.Tasks,
		log:      log,
	}, nil
}

// Enqueue schedules an ingestion of transcript for videoID and returns
// without waiting for it to run.
func (d *Dispatcher) Enqueue(videoID, transcript string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if _, ok := d.inflight[videoID]; ok {
		d.mu.Unlock()
		return ErrAlreadyQueued
	}
	d.inflight[videoID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()
	d.queued.Inc()
	prev, marked := d.markQueued(videoID)

	err := d.pool.Submit(func() {
		defer d.done(videoID)
		if err := d.ingester.Ingest(d.ctx, videoID, transcript); err != nil {
			d.log.Error("ingestion: background run failed",
				slog.String("video_id", videoID),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		d.mu.Lock()
		delete(d.inflight, videoID)
		d.mu.Unlock()
		d.queued.Dec()
		d.wg.Done()
		if marked {
			d.tasks.Set(videoID, prev)
		}
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrQueueFull
		}
		return fmt.Errorf("ingestion: submit: %w", err)
	}
	d.log.Info("ingestion: queued", slog.String("video_id", videoID))
	return nil
}

// markQueued moves videoID to processing at progress 0 and returns the task
// it replaced. It reports false when no registry is configured.
func (d *Dispatcher) markQueued(videoID string) (tasks.Task, bool) {
	if d.tasks == nil {
		return tasks.Task{}, false
	}
	prev := d.tasks.Get(videoID)
	d.tasks.Update(videoID, func(t *tasks.Task) {
		t.Status = tasks.StatusProcessing
		t.Progress = 0
		t.Error = ""
	})
	return prev, true
}

// Queued reports whether videoID is queued or being ingested.
func (d *Dispatcher) Queued(videoID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[videoID]
	return ok
}

// Close stops accepting work and waits for queued runs to finish. When ctx
// expires first, running ingestions are cancelled and Close returns ctx.Err()
// once they have unwound.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		d.cancel()
		<-finished
		err = ctx.Err()
	}
	d.cancel()
	d.pool.Release()
	return err
}

// done removes videoID from the in-flight set.
func (d *Dispatcher) done(videoID string) {
	d.mu.Lock()
	delete(d.inflight, videoID)
	d.mu.Unlock()
	d.queued.Dec()
	d.wg.Done()
}
