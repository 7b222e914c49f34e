package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/constellation-telemetry/internal/logging"
)

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config  RateLimitConfig
	log     logging.Logger
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter builds a limiter. Idle clients are evicted lazily on access.
func NewRateLimiter(cfg RateLimitConfig, log logging.Logger) *RateLimiter {
	if log == nil {
		log = logging.Noop()
	}
	return &RateLimiter{
		config:  cfg,
		log:     log,
		clients: make(map[string]*clientLimiter),
	}
}

const clientIdleTTL = 5 * time.Minute

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > clientIdleTTL {
			delete(rl.clients, key)
		}
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware rejects requests above the configured rate with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if !rl.allow(ip, time.Now()) {
			logging.FromContext(r.Context(), rl.log).Warn(r.Context(), "rate limit exceeded",
				logging.String("client_ip", ip),
				logging.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
