package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/ytqa-go/internal/ingestion"
	"github.com/54b3r/ytqa-go/internal/qa"
	"github.com/54b3r/ytqa-go/internal/tasks"
	"github.com/54b3r/ytqa-go/internal/transcript"
)

// testVideoID is a syntactically valid YouTube video ID.
const testVideoID = "dQw4w9WgXcQ"

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeFetcher returns a fixed transcript or error and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

// fakeQueue records enqueued videos.
type fakeQueue struct {
	mu       sync.Mutex
	queued   map[string]bool
	enqueued []string
	err      error
}

func newFakeQueue() *fakeQueue { return &fakeQueue{queued: map[string]bool{}} }

func (q *fakeQueue) Enqueue(videoID, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, videoID)
	q.queued[videoID] = true
	return nil
}

func (q *fakeQueue) Queued(videoID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[videoID]
}

// fakeAnswerer returns a fixed answer or error.
type fakeAnswerer struct {
	answer *qa.Answer
	err    error
}

func (f *fakeAnswerer) Answer(_ context.Context, videoID, _ string) (*qa.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := *f.answer
	a.VideoID = videoID
	return &a, nil
}

// testRig bundles a Server with its fakes.
type testRig struct {
	srv      *Server
	fetcher  *fakeFetcher
	queue    *fakeQueue
	registry *tasks.Registry
	answerer *fakeAnswerer
}

// newRig builds a fully wired Server backed by fakes and an isolated registry.
// opts adjust the server config before construction.
func newRig(t *testing.T, opts ...func(*Config)) *testRig {
	t.Helper()

	registry, stop := tasks.NewRegistry(0)
	t.Cleanup(stop)

	rig := &testRig{
		fetcher:  &fakeFetcher{text: "hello world"},
		queue:    newFakeQueue(),
		registry: registry,
		answerer: &fakeAnswerer{answer: &qa.Answer{Answer: "42", Evidence: []qa.Evidence{{Content: "c", Score: 0.9}}}},
	}

	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		TriggerLimit:    RouteLimit{PerSecond: 1000, Burst: 1000},
		AskLimit:        RouteLimit{PerSecond: 1000, Burst: 1000},
		CORSOrigins:     []string{"http://localhost:3000"},
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	srv, err := New(Deps{
		Transcripts: rig.fetcher,
		Queue:       rig.queue,
		Tasks:       rig.registry,
		QA:          rig.answerer,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.stopRL)
	rig.srv = srv
	return rig
}

// do sends a request through the full middleware chain.
func (r *testRig) do(method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.srv.Handler().ServeHTTP(w, req)
	return w
}

// newTestServer builds a bare *Server for direct handler tests.
func newTestServer() *Server {
	return &Server{
		cfg:     &Config{},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Construction and root
// ---------------------------------------------------------------------------

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestRoot(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	w := rig.do(http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decode[map[string]string](t, w); body["status"] != "API is running" {
		t.Errorf("unexpected body: %v", body)
	}
}

// ---------------------------------------------------------------------------
// POST /transcript/
// ---------------------------------------------------------------------------

func TestTranscript_SchedulesIngestion(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.fetcher.text = strings.Repeat("é", 600)

	w := rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: body: %s", w.Code, w.Body.String())
	}

	resp := decode[transcriptResponse](t, w)
	if resp.VideoID != testVideoID || resp.Status != tasks.StatusProcessing || resp.Message != msgScheduled {
		t.Errorf("unexpected response: %+v", resp)
	}
	if want := strings.Repeat("é", 500) + "..."; resp.Transcript != want {
		t.Errorf("preview: got %d runes, want 503", len([]rune(resp.Transcript)))
	}
	if len(rig.queue.enqueued) != 1 || rig.queue.enqueued[0] != testVideoID {
		t.Errorf("enqueued: %v", rig.queue.enqueued)
	}
	if got := testutil.ToFloat64(rig.srv.metrics.transcriptRequestsTotal.WithLabelValues(outcomeQueued)); got != 1 {
		t.Errorf("queued counter: got %v, want 1", got)
	}
}

func TestTranscript_AcceptsURLInBody(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	w := rig.do(http.MethodPost, "/transcript", `{"video_id":"https://youtu.be/`+testVideoID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: body: %s", w.Code, w.Body.String())
	}
	if len(rig.queue.enqueued) != 1 || rig.queue.enqueued[0] != testVideoID {
		t.Errorf("enqueued: %v", rig.queue.enqueued)
	}
}

func TestTranscript_AlreadyIndexed(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.registry.Set(testVideoID, tasks.Task{Status: tasks.StatusCompleted, Progress: 100, Transcript: "full text"})

	w := rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, "")
	resp := decode[transcriptResponse](t, w)

	if w.Code != http.StatusOK || resp.Status != tasks.StatusCompleted || resp.Transcript != "full text" || resp.Message != msgAlreadyIndexed {
		t.Errorf("unexpected response %d: %+v", w.Code, resp)
	}
	if rig.fetcher.calls != 0 || len(rig.queue.enqueued) != 0 {
		t.Error("indexed video must not be fetched or queued again")
	}
}

func TestTranscript_InProgressIsNotRequeued(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*testRig)
	}{
		{name: "queued", setup: func(r *testRig) { r.queue.queued[testVideoID] = true }},
		{name: "processing", setup: func(r *testRig) {
			r.registry.Set(testVideoID, tasks.Task{Status: tasks.StatusProcessing, Progress: 40})
		}},
		{name: "enqueue race", setup: func(r *testRig) { r.queue.err = ingestion.ErrAlreadyQueued }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rig := newRig(t)
			tc.setup(rig)

			w := rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, "")
			resp := decode[transcriptResponse](t, w)
			if w.Code != http.StatusOK || resp.Status != tasks.StatusProcessing {
				t.Errorf("unexpected response %d: %+v", w.Code, resp)
			}
			if len(rig.queue.enqueued) != 0 {
				t.Errorf("video queued twice: %v", rig.queue.enqueued)
			}
		})
	}
}

func TestTranscript_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		setup    func(*testRig)
		wantCode int
		wantMsg  string
	}{
		// ── Input validation ──
		{name: "missing id", target: "/transcript/", wantCode: http.StatusBadRequest, wantMsg: msgInvalidID},
		{name: "invalid id", target: "/transcript/?video_id=short", wantCode: http.StatusBadRequest, wantMsg: msgInvalidID},

		// ── Transcript source ──
		{
			name: "not found", target: "/transcript/?video_id=" + testVideoID,
			setup:    func(r *testRig) { r.fetcher.err = transcript.ErrNotFound },
			wantCode: http.StatusNotFound, wantMsg: msgNoTranscript,
		},
		{
			name: "blank transcript", target: "/transcript/?video_id=" + testVideoID,
			setup:    func(r *testRig) { r.fetcher.text = "   " },
			wantCode: http.StatusNotFound, wantMsg: msgNoTranscript,
		},
		{
			name: "upstream failure", target: "/transcript/?video_id=" + testVideoID,
			setup:    func(r *testRig) { r.fetcher.err = errors.New("boom") },
			wantCode: http.StatusInternalServerError, wantMsg: "Error: boom",
		},

		// ── Dispatcher ──
		{
			name: "queue full", target: "/transcript/?video_id=" + testVideoID,
			setup:    func(r *testRig) { r.queue.err = ingestion.ErrQueueFull },
			wantCode: http.StatusServiceUnavailable, wantMsg: "Error: " + ingestion.ErrQueueFull.Error(),
		},
		{
			name: "enqueue failure", target: "/transcript/?video_id=" + testVideoID,
			setup:    func(r *testRig) { r.queue.err = fmt.Errorf("pool exploded") },
			wantCode: http.StatusInternalServerError, wantMsg: "Error: pool exploded",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rig := newRig(t)
			if tc.setup != nil {
				tc.setup(rig)
			}

			w := rig.do(http.MethodPost, tc.target, "")
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: body: %s", tc.wantCode, w.Code, w.Body.String())
			}
			if resp := decode[transcriptResponse](t, w); resp.Message != tc.wantMsg {
				t.Errorf("message: got %q, want %q", resp.Message, tc.wantMsg)
			}
		})
	}
}

func TestTranscript_InvalidBody(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	w := rig.do(http.MethodPost, "/transcript/", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /transcript/status/{video_id}
// ---------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	w := rig.do(http.MethodGet, "/transcript/status/"+testVideoID, "")
	task := decode[tasks.Task](t, w)
	if w.Code != http.StatusOK || task.Status != tasks.StatusNotStarted || task.Progress != 0 {
		t.Errorf("unknown video: %d %+v", w.Code, task)
	}

	rig.registry.Set(testVideoID, tasks.Task{Status: tasks.StatusProcessing, Progress: 30})
	w = rig.do(http.MethodGet, "/transcript/status/"+testVideoID, "")
	task = decode[tasks.Task](t, w)
	if task.Status != tasks.StatusProcessing || task.Progress != 30 || task.VideoID != testVideoID {
		t.Errorf("processing video: %+v", task)
	}

	if w := rig.do(http.MethodGet, "/transcript/status/nope", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /transcript/ask
// ---------------------------------------------------------------------------

func TestAsk_Answer(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	w := rig.do(http.MethodGet, "/transcript/ask?video_id="+testVideoID+"&question=what", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: body: %s", w.Code, w.Body.String())
	}
	ans := decode[qa.Answer](t, w)
	if ans.VideoID != testVideoID || ans.Answer != "42" || len(ans.Evidence) != 1 {
		t.Errorf("unexpected answer: %+v", ans)
	}
}

func TestAsk_NoContextKeepsEmptyEvidenceArray(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.answerer.answer = &qa.Answer{Answer: qa.NoContextAnswer, Evidence: []qa.Evidence{}}

	w := rig.do(http.MethodGet, "/transcript/ask?video_id="+testVideoID+"&question=what", "")
	if !strings.Contains(w.Body.String(), `"evidence":[]`) {
		t.Errorf("expected empty evidence array, got %s", w.Body.String())
	}
	if got := testutil.ToFloat64(rig.srv.metrics.askRequestsTotal.WithLabelValues(outcomeNoContext)); got != 1 {
		t.Errorf("no_context counter: got %v, want 1", got)
	}
}

func TestAsk_Errors(t *testing.T) {
	t.Parallel()

	notReady := func(st tasks.Status) error { return fmt.Errorf("%w (status %s)", qa.ErrNotReady, st) }
	setStatus := func(st tasks.Status) func(*testRig) {
		return func(r *testRig) { r.registry.Set(testVideoID, tasks.Task{Status: st}) }
	}

	tests := []struct {
		name       string
		query      string
		setup      func(*testRig)
		err        error
		wantCode   int
		wantDetail string
	}{
		{name: "still indexing", query: "video_id=" + testVideoID + "&question=q", setup: setStatus(tasks.StatusProcessing), err: notReady(tasks.StatusProcessing), wantCode: http.StatusBadRequest, wantDetail: msgStillIndexing},
		{name: "queued", query: "video_id=" + testVideoID + "&question=q", setup: func(r *testRig) { r.queue.queued[testVideoID] = true }, err: notReady(tasks.StatusNotStarted), wantCode: http.StatusBadRequest, wantDetail: msgStillIndexing},
		{name: "never indexed", query: "video_id=" + testVideoID + "&question=q", err: notReady(tasks.StatusNotStarted), wantCode: http.StatusBadRequest, wantDetail: msgNotIndexed},
		{name: "wiped by a later ingestion", query: "video_id=" + testVideoID + "&question=q", setup: func(r *testRig) {
			r.registry.Set(testVideoID, tasks.Task{Status: tasks.StatusCompleted, Progress: 100})
			r.registry.ResetCompletedExcept("other-video")
		}, err: notReady(tasks.StatusNotStarted), wantCode: http.StatusBadRequest, wantDetail: msgNotIndexed},
		{name: "indexing failed", query: "video_id=" + testVideoID + "&question=q", setup: setStatus(tasks.StatusFailed), err: notReady(tasks.StatusFailed), wantCode: http.StatusBadRequest, wantDetail: msgIndexFailed},
		{name: "model failure", query: "video_id=" + testVideoID + "&question=q", err: errors.New("qa: generate answer: 502"), wantCode: http.StatusInternalServerError, wantDetail: "AI connection issue: qa: generate answer: 502"},
		{name: "missing question", query: "video_id=" + testVideoID, wantCode: http.StatusBadRequest, wantDetail: "question is required"},
		{name: "invalid id", query: "video_id=x&question=q", wantCode: http.StatusBadRequest, wantDetail: msgInvalidID},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rig := newRig(t)
			if tc.setup != nil {
				tc.setup(rig)
			}
			rig.answerer.err = tc.err

			w := rig.do(http.MethodGet, "/transcript/ask?"+tc.query, "")
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: body: %s", tc.wantCode, w.Code, w.Body.String())
			}
			if resp := decode[detailResponse](t, w); resp.Detail != tc.wantDetail {
				t.Errorf("detail: got %q, want %q", resp.Detail, tc.wantDetail)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestCORS(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	preflight := httptest.NewRequest(http.MethodOptions, "/transcript/", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	rig.srv.Handler().ServeHTTP(w, preflight)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin: got %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	rig.srv.Handler().ServeHTTP(w, other)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin must not be allowed, got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	rig.srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("expected caller request ID to be echoed, got %q", got)
	}

	w = rig.do(http.MethodGet, "/api/health", "")
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Errorf("expected generated UUID request ID, got %q", got)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	if got := preview("short"); got != "short..." {
		t.Errorf("preview(short) = %q", got)
	}
}
