// Package ratelimit provides a fixed-window rate limiting middleware on top of
// a cache counter.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// Config defines rate limiting parameters.
type Config struct {
	// Prefix namespaces the counter keys, e.g. "login".
	Prefix            string        `mapstructure:"prefix"`
	RequestsPerWindow int64         `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "ratelimit"
	}
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.Window == 0 {
		c.Window = cache.TTLRateLimit
	}
}

// Limiter counts requests per client address in a cache counter.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	prefix  string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New creates a limiter keyed by client IP.
func New(counter cache.Counter, c Config, log *slog.Logger) *Limiter {
	c.ApplyDefaults()
	return &Limiter{
		cache:   counter,
		keyFunc: ClientIP,
		prefix:  c.Prefix,
		limit:   c.RequestsPerWindow,
		window:  c.Window,
		log:     logutil.NoopIfNil(log),
	}
}

// ClientIP returns the host part of r.RemoteAddr. Behind a proxy, pass
// realip.TrustedProxies.ClientIP to WithKeyFunc instead.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Wrap counts the request against its client's window and answers 429 once
// the limit is passed. Counter failures let the request through. Every
// counted response carries X-RateLimit-Limit and X-RateLimit-Remaining.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.prefix + ":" + l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), key, 1, l.window)
		if err != nil {
			l.log.Warn("rate limit check failed", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(l.limit-count, 0), 10))

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithKeyFunc returns a copy of l keyed by fn.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	cp := *l
	cp.keyFunc = fn
	return &cp
}
