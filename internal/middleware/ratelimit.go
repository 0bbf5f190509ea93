package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/chat-relay/internal/metrics"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-IP token bucket to the configured methods. Polls
// are not limited; the widget polls on a fixed cadence.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	methods  map[string]bool
	now      func() time.Time
}

// NewRateLimiter creates a limiter for the given HTTP methods.
func NewRateLimiter(rps float64, burst int, methods ...string) *RateLimiter {
	if len(methods) == 0 {
		methods = []string{http.MethodPost, http.MethodPut}
	}
	m := make(map[string]bool, len(methods))
	for _, method := range methods {
		m[method] = true
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		methods:  m,
		now:      time.Now,
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.methods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.allow(clientIP(r)) {
			metrics.RateLimitHits.WithLabelValues(r.Method).Inc()
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	for key, other := range rl.visitors {
		if now.Sub(other.lastSeen) > limiterIdleTTL {
			delete(rl.visitors, key)
		}
	}
	return v.limiter.AllowN(now, 1)
}

// clientIP returns the remote host; chi's RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
