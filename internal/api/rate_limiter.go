package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pagent-credits/backend/internal/errors"
)

// RateLimiter enforces a per-client token bucket. The limiter runs before
// authentication, so clients are keyed by source IP (honoring
// X-Forwarded-For from the ingress proxy).
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit rate.Limit
	burst int
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// getLimiter returns the limiter for a client key, creating one on first use
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

// clientKey identifies the caller for rate limiting purposes
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware creates a middleware that enforces the per-client limit
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.getLimiter(clientKey(r)).Allow() {
				respondError(w, &errors.Error{
					Category:   errors.CategoryUserInput,
					StatusCode: http.StatusTooManyRequests,
					Code:       errors.CodeRateLimited,
					Message:    "rate limit exceeded, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
