// Package ratelimit throttles mutating requests per client.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/httprate"

	"soci/internal/log"
)

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	Window            time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
	}
}

// Limiter wraps httprate with a JSON refusal and a hit counter.
type Limiter struct {
	limit     func(http.Handler) http.Handler
	extractIP func(*http.Request) string
	logger    *log.Logger
	window    time.Duration
	hits      int64
}

// NewLimiter keys clients with extractIP, falling back to httprate.KeyByIP.
func NewLimiter(config Config, extractIP func(*http.Request) string, logger *log.Logger) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if logger == nil {
		logger = log.Discard()
	}
	l := &Limiter{
		extractIP: extractIP,
		logger:    logger.WithComponent(log.ComponentRateLimit),
		window:    config.Window,
	}
	l.limit = httprate.Limit(config.RequestsPerMinute, config.Window,
		httprate.WithKeyFuncs(l.key),
		httprate.WithLimitHandler(l.refuse),
	)
	return l
}

func (l *Limiter) key(r *http.Request) (string, error) {
	if l.extractIP != nil {
		if ip := l.extractIP(r); ip != "" {
			return "ip:" + ip, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (l *Limiter) refuse(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&l.hits, 1)
	key, _ := l.key(r)
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, key, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded, try again later"}`))
}

// Middleware returns the HTTP middleware function
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return l.limit(next)
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits int64
}

// GetMetrics returns current rate limiting metrics
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{TotalHits: atomic.LoadInt64(&l.hits)}
}
