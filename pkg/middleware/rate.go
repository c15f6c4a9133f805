// Package middleware provides the HTTP middleware stack of the REMS server.
package middleware

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/rems-acc/rems/pkg/response"
)

// DefaultLimiterEntries caps how many client addresses are tracked at once.
// The least recently seen client is evicted first.
const DefaultLimiterEntries = 10_000

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter allows rps requests per second per client with the given
// burst. entries <= 0 selects DefaultLimiterEntries.
func NewRateLimiter(rps float64, burst, entries int) (*RateLimiter, error) {
	if entries <= 0 {
		entries = DefaultLimiterEntries
	}
	cache, err := lru.New[string, *rate.Limiter](entries)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, limiters: cache}, nil
}

// Allow reports whether the client identified by key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters.Add(key, limiter)
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// Tracked returns the number of clients currently holding a bucket.
func (rl *RateLimiter) Tracked() int {
	return rl.limiters.Len()
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			response.TooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are not
// consulted; behind a trusted proxy, rewrite RemoteAddr first with chi's
// middleware.RealIP.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
