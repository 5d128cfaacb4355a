/*
middleware.go - Request logging, response caching, and rate limiting

PURPOSE:
  The HTTP-side plumbing around the handlers: structured request logs,
  a short-TTL in-memory cache for read endpoints, and per-client rate
  limiting. None of this touches reservation semantics; handlers flush
  the cache after successful writes so reads never serve stale state
  past one write.

CACHING:
  Only successful GET responses are cached, keyed by request URI. The
  TTL is a config knob; writes call Handler.flushCache to drop
  everything at once rather than tracking per-key dependencies.

RATE LIMITING:
  Token bucket per client IP (golang.org/x/time/rate). Unknown IPs get
  a fresh limiter on first sight; the map is never pruned, which is
  fine for a single-school deployment.

SEE ALSO:
  - server.go: Where the stack is assembled
*/
package api

import (
	"bytes"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// =============================================================================
// REQUEST LOGGING
// =============================================================================

// RequestLogger logs one structured line per request.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Str("remote", clientIP(r)).
				Msg("request")
		})
	}
}

// =============================================================================
// RESPONSE CACHE
// =============================================================================

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (w *bodyCacheWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Cache is a middleware for in-memory caching of GET requests.
func Cache(store *gocache.Cache, duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if resp, found := store.Get(key); found {
				cached := resp.(cachedResponse)
				for k, v := range cached.headers {
					w.Header()[k] = v
				}
				w.WriteHeader(cached.status)
				w.Write(cached.body)
				return
			}

			bcw := &bodyCacheWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
				body:           bytes.NewBuffer(nil),
			}
			next.ServeHTTP(bcw, r)

			// Only cache successful responses
			if bcw.status >= 200 && bcw.status < 300 {
				store.Set(key, cachedResponse{
					status: bcw.status,
					// Make a copy of the header map.
					headers: bcw.Header().Clone(),
					body:    bcw.body.Bytes(),
				}, duration)
			}
		})
	}
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// IPRateLimiter stores a rate limiter for each IP address.
type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.RWMutex
	r   rate.Limit
	b   int
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

// GetLimiter returns the rate limiter for an IP address, creating one
// on first sight.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.ips[ip]
	i.mu.RUnlock()
	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if limiter, exists := i.ips[ip]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(i.r, i.b)
	i.ips[ip] = limiter
	return limiter
}

// RateLimit is a middleware for IP-based rate limiting.
func RateLimit(r rate.Limit, b int) func(http.Handler) http.Handler {
	limiter := NewIPRateLimiter(r, b)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.GetLimiter(clientIP(req)).Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
