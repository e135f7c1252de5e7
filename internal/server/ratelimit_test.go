package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// newTestLimiter builds a rateLimiter with the given budgets and a counter
// registered on an isolated registry.
func newTestLimiter(t *testing.T, budgets map[string]RouteLimit) (*rateLimiter, *prometheus.CounterVec) {
	t.Helper()
	m := newServerMetrics(prometheus.NewRegistry())
	rl, stop := newRateLimiter(budgets, m.rateLimitedTotal, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(stop)
	return rl, m.rateLimitedTotal
}

func sendFrom(h http.Handler, method, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Limiter
// ---------------------------------------------------------------------------

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	rl, rejected := newTestLimiter(t, map[string]RouteLimit{budgetAsk: {PerSecond: 0.001, Burst: 2}})
	h := rl.limit(budgetAsk, okHandler)

	for i := range 2 {
		if w := sendFrom(h, http.MethodGet, "/transcript/ask", "10.0.0.1:1000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := sendFrom(h, http.MethodGet, "/transcript/ask", "10.0.0.1:1000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1000" {
		t.Errorf("Retry-After: want 1000 (one token at 0.001/s), got %q", got)
	}
	if got := testutil.ToFloat64(rejected.WithLabelValues(budgetAsk)); got != 1 {
		t.Errorf("rate_limited_total{budget=ask}: want 1, got %v", got)
	}
}

// A rejected request must not consume a token, so the wait it was told about
// stays accurate.
func TestRateLimit_RejectionDoesNotConsumeTokens(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, map[string]RouteLimit{budgetTrigger: {PerSecond: 1, Burst: 1}})
	h := rl.limit(budgetTrigger, okHandler)

	sendFrom(h, http.MethodPost, "/transcript/", "10.0.0.1:1000")
	for range 5 {
		w := sendFrom(h, http.MethodPost, "/transcript/", "10.0.0.1:1000")
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", w.Code)
		}
		if got := w.Header().Get("Retry-After"); got != "1" {
			t.Fatalf("Retry-After: want 1, got %q", got)
		}
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, map[string]RouteLimit{budgetTrigger: {PerSecond: 0.001, Burst: 1}})
	h := rl.limit(budgetTrigger, okHandler)

	if w := sendFrom(h, http.MethodPost, "/transcript/", "10.0.0.1:1000"); w.Code != http.StatusOK {
		t.Fatalf("IP A first: expected 200, got %d", w.Code)
	}
	if w := sendFrom(h, http.MethodPost, "/transcript/", "10.0.0.1:1000"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("IP A second: expected 429, got %d", w.Code)
	}
	if w := sendFrom(h, http.MethodPost, "/transcript/", "10.0.0.2:1000"); w.Code != http.StatusOK {
		t.Errorf("IP B: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_EvictDropsIdleVisitors(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, map[string]RouteLimit{budgetAsk: {PerSecond: 1, Burst: 1}})
	rl.limiter(budgetAsk, "10.0.0.1")
	rl.limiter(budgetTrigger, "10.0.0.1")

	rl.evict(time.Now().Add(time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.visitors) != 0 {
		t.Errorf("expected all visitors evicted, %d left", len(rl.visitors))
	}
}

func TestRouteLimit_WithDefaults(t *testing.T) {
	t.Parallel()

	got := RouteLimit{Burst: 3}.withDefaults(defaultAskLimit)
	if got.PerSecond != defaultAskLimit.PerSecond || got.Burst != 3 {
		t.Errorf("withDefaults: got %+v", got)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:1234", "10.0.0.1"},
		{"[::1]:8000", "[::1]"},
		{"unix", "unix"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tc.addr
		if got := clientIP(r); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

// tightLimits leaves one request per IP on each limited route.
func tightLimits(cfg *Config) {
	cfg.TriggerLimit = RouteLimit{PerSecond: 0.001, Burst: 1}
	cfg.AskLimit = RouteLimit{PerSecond: 0.001, Burst: 1}
}

func TestRoutes_StatusPollingIsNeverLimited(t *testing.T) {
	t.Parallel()
	rig := newRig(t, tightLimits)

	if w := rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, ""); w.Code != http.StatusOK {
		t.Fatalf("trigger: expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if w := rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger: expected 429, got %d", w.Code)
	}

	for i := range 50 {
		w := rig.do(http.MethodGet, "/transcript/status/"+testVideoID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status poll %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRoutes_TriggerAndAskHaveSeparateBudgets(t *testing.T) {
	t.Parallel()
	rig := newRig(t, tightLimits)

	rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, "")
	if w := rig.do(http.MethodPost, "/transcript/?video_id="+testVideoID, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("trigger budget: expected 429, got %d", w.Code)
	}

	ask := "/transcript/ask?video_id=" + testVideoID + "&question=why"
	if w := rig.do(http.MethodGet, ask, ""); w.Code == http.StatusTooManyRequests {
		t.Fatal("ask must not share the exhausted trigger budget")
	}
	if w := rig.do(http.MethodGet, ask, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("ask budget: expected 429, got %d", w.Code)
	}
}
