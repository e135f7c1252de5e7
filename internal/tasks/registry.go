// Package tasks tracks the lifecycle of per-video ingestion tasks.
//
// A task moves through:
//
//	not_started -> processing -> completed
//	                    |-> failed  (pipeline error)
//	                    |-> error   (empty transcript, rejected before processing)
//
// The registry is in-memory only; a restart forgets every task while the
// vector index keeps its records.
package tasks

import (
	"sync"
	"time"
)

// Status is the lifecycle state of an ingestion task.
type Status string

const (
	// StatusNotStarted is reported for videos the registry has never seen.
	StatusNotStarted Status = "not_started"
	// StatusProcessing means an ingestion run owns the video.
	StatusProcessing Status = "processing"
	// StatusCompleted means the video's chunks are resident and queryable.
	StatusCompleted Status = "completed"
	// StatusFailed means a run started but did not finish.
	StatusFailed Status = "failed"
	// StatusError means the request was rejected before processing began.
	StatusError Status = "error"
)

// Terminal reports whether no run is active for a task in this state.
func (s Status) Terminal() bool {
	return s != StatusProcessing
}

// Task is a snapshot of one video's ingestion state.
type Task struct {
	// VideoID is the YouTube video identifier.
	VideoID string `json:"video_id"`
	// Status is the lifecycle state.
	Status Status `json:"status"`
	// Progress is the completion percentage in [0, 100].
	Progress int `json:"progress"`
	// Transcript is the full transcript text, retained once completed.
	Transcript string `json:"transcript,omitempty"`
	// Error describes why the task failed or was rejected.
	Error string `json:"error,omitempty"`
	// Chunks is the number of chunks stored in the index.
	Chunks int `json:"chunks,omitempty"`
	// SkippedChunks is the number of chunks dropped because they could not be embedded.
	SkippedChunks int `json:"skipped_chunks,omitempty"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Registry is a concurrency-safe map of video ID to Task.
// Reads return copies so callers never observe a task mid-update.
type Registry struct {
	// mu guards tasks.
	mu sync.RWMutex
	// tasks maps video ID to its latest state.
	tasks map[string]*Task
	// ttl is how long a terminal task is kept after its last update.
	// Zero keeps tasks forever.
	ttl time.Duration
	// now returns the current time; replaced in tests.
	now func() time.Time
}

// NewRegistry constructs a Registry. When ttl is positive a background
// goroutine evicts terminal tasks that have not changed for ttl; it exits
// when the returned stop function is called. With ttl zero no goroutine is
// started and stop is a no-op.
func NewRegistry(ttl time.Duration) (*Registry, func()) {
	r := &Registry{
		tasks: make(map[string]*Task),
		ttl:   ttl,
		now:   time.Now,
	}
	if ttl <= 0 {
		return r, func() {}
	}

	stopCh := make(chan struct{})
	var once sync.Once
	go r.evictLoop(stopCh, min(ttl, time.Minute))

	return r, func() { once.Do(func() { close(stopCh) }) }
}

// Get returns the task for videoID, or a not_started task with zero progress
// when the video is unknown.
func (r *Registry) Get(videoID string) Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tasks[videoID]; ok {
		return *t
	}
	return Task{VideoID: videoID, Status: StatusNotStarted}
}

// Set replaces the task for videoID.
func (r *Registry) Set(videoID string, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.VideoID = videoID
	t.UpdatedAt = r.now()
	r.tasks[videoID] = &t
}

// Update applies fn to the task for videoID under the write lock, creating
// a not_started task first when the video is unknown. It returns the updated
// snapshot.
func (r *Registry) Update(videoID string, fn func(t *Task)) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[videoID]
	if !ok {
		t = &Task{VideoID: videoID, Status: StatusNotStarted}
		r.tasks[videoID] = t
	}
	fn(t)
	t.VideoID = videoID
	t.UpdatedAt = r.now()
	return *t
}

// ResetCompletedExcept moves every completed task other than keep back to
// not_started and returns how many were reset. It is called after the index
// has been wiped so those videos are re-ingested on their next request.
func (r *Registry) ResetCompletedExcept(keep string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, t := range r.tasks {
		if id == keep || t.Status != StatusCompleted {
			continue
		}
		r.tasks[id] = &Task{VideoID: id, Status: StatusNotStarted, UpdatedAt: r.now()}
		n++
	}
	return n
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// evictLoop calls evict every interval until stopCh is closed.
func (r *Registry) evictLoop(stopCh <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.evict()
		}
	}
}

// evict removes terminal tasks whose last update is older than ttl.
// Processing tasks are never evicted.
func (r *Registry) evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	n := 0
	for id, t := range r.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			n++
		}
	}
	return n
}
