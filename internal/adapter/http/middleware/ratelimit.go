package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iho/numledger/internal/infrastructure/metrics"
)

// Limiter decides whether a request keyed by client may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects requests over the limit with 429. When the limiter
// backend fails the request is let through.
func RateLimit(limiter Limiter, m *metrics.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), getIP(r))
			if err != nil {
				logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
				if m != nil {
					m.RateLimitFailOpen.Inc()
				}
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				if m != nil {
					m.RateLimitHits.WithLabelValues("ip").Inc()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LocalLimiter is an in-process token bucket per client, used when no
// shared backend is configured.
type LocalLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewLocalLimiter creates a LocalLimiter.
// r: requests per second, b: max burst size
func NewLocalLimiter(r float64, b int) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(r),
		burst:    b,
	}
}

// Allow implements Limiter. It never fails.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.getLimiter(key).Allow(), nil
}

func (l *LocalLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	limiter, exists = l.limiters[key]
	if exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.rate, l.burst)
	l.limiters[key] = limiter

	return limiter
}

// Reset drops all per-client buckets.
func (l *LocalLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiters = make(map[string]*rate.Limiter)
}

// getIP extracts the client IP. RealIP has already rewritten RemoteAddr
// from proxy headers.
func getIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
