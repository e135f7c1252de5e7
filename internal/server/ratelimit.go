package server

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/ytqa-go/internal/logging"
)

// Budget names. Each budget has its own per-IP token bucket, so exhausting
// triggers never blocks questions and vice versa.
const (
	budgetTrigger = "trigger"
	budgetAsk     = "ask"
)

// RouteLimit is the per-IP token bucket applied to one group of routes.
type RouteLimit struct {
	// PerSecond is the sustained rate of requests allowed per IP.
	PerSecond float64
	// Burst is the number of requests an idle IP may send at once.
	Burst int
}

// withDefaults fills zero fields of l from def.
func (l RouteLimit) withDefaults(def RouteLimit) RouteLimit {
	if l.PerSecond <= 0 {
		l.PerSecond = def.PerSecond
	}
	if l.Burst <= 0 {
		l.Burst = def.Burst
	}
	return l
}

var (
	// defaultTriggerLimit allows one ingestion every five seconds per IP
	// after a burst of five: each trigger costs a transcript fetch and a
	// full embedding run.
	defaultTriggerLimit = RouteLimit{PerSecond: 0.2, Burst: 5}
	// defaultAskLimit allows one question per second per IP after a burst
	// of ten: each question costs a chat completion.
	defaultAskLimit = RouteLimit{PerSecond: 1, Burst: 10}
)

// visitorIdleTTL is how long an idle IP keeps its buckets.
const visitorIdleTTL = 5 * time.Minute

// visitorKey identifies one bucket.
type visitorKey struct {
	budget string
	ip     string
}

// visitor is one bucket and the last time it was used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces named per-IP budgets. Idle buckets are evicted every
// minute to bound memory usage.
type rateLimiter struct {
	// mu protects visitors.
	mu sync.Mutex
	// budgets maps a budget name to its limit.
	budgets map[string]RouteLimit
	// visitors maps (budget, ip) to its bucket.
	visitors map[visitorKey]*visitor
	// rejected counts 429 responses by budget. May be nil.
	rejected *prometheus.CounterVec
	// log records rejections.
	log *slog.Logger
}

// newRateLimiter constructs a rateLimiter for budgets and starts the
// background eviction goroutine, which exits when the returned stop function
// is called.
func newRateLimiter(budgets map[string]RouteLimit, rejected *prometheus.CounterVec, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		budgets:  budgets,
		visitors: make(map[visitorKey]*visitor),
		rejected: rejected,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// limiter returns the bucket for ip under budget, creating it on first use.
func (rl *rateLimiter) limiter(budget, ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := visitorKey{budget: budget, ip: ip}
	v, ok := rl.visitors[key]
	if !ok {
		l := rl.budgets[budget]
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.PerSecond), l.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict(time.Now().Add(-visitorIdleTTL))
		}
	}
}

// evict drops buckets last used before cutoff.
func (rl *rateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// limit wraps next with the named budget. A rejected request gets 429 with
// a Retry-After header giving the whole seconds until its next token.
func (rl *rateLimiter) limit(budget string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		res := rl.limiter(budget, ip).Reserve()
		delay := res.Delay()
		if !res.OK() || delay > 0 {
			res.Cancel()
			if rl.rejected != nil {
				rl.rejected.WithLabelValues(budget).Inc()
			}
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("budget", budget),
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", retryAfter(res.OK(), delay))
			writeJSON(r.Context(), w, http.StatusTooManyRequests, detailResponse{Detail: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter formats delay as whole seconds, at least one.
func retryAfter(ok bool, delay time.Duration) string {
	if !ok {
		return "60"
	}
	return strconv.Itoa(max(1, int(math.Ceil(delay.Seconds()))))
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is ignored; deployments behind a proxy share one bucket
// per proxy address.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
