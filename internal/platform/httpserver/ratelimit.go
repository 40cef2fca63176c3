package httpserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/playback-heatmap/internal/platform/api"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// RateLimiter keeps one token bucket per key. Limiters idle for longer than
// it takes to refill are dropped on the next sweep.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedLimiter
	limit     rate.Limit
	burst     int
	key       KeyFunc
	now       func() time.Time
	lastSweep time.Time
}

type keyedLimiter struct {
	lim  *rate.Limiter
	last time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (req/s) and burst
// size. A nil key charges requests to the client IP.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ClientIP
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*keyedLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		key:      key,
		now:      time.Now,
	}
}

// ClientIP returns the first X-Forwarded-For hop, or the remote host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyedLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = kl
	}
	kl.last = now
	return kl.lim.AllowN(now, 1)
}

// sweep must be called with mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	if rl.limit <= 0 {
		return
	}
	idle := time.Duration(float64(rl.burst) / float64(rl.limit) * float64(time.Second))
	if now.Sub(rl.lastSweep) < idle {
		return
	}
	rl.lastSweep = now
	for k, kl := range rl.limiters {
		if now.Sub(kl.last) > idle {
			delete(rl.limiters, k)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(rl.key(r)) {
			rid := RequestIDFromContext(r.Context())
			api.RateLimited(w, "RATE_LIMITED", "Too many requests", rid, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
