package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// RateLimit throttles the API per client address using the engine's sliding
// window limiter (Redis-backed when available). A limiter error fails open;
// a throttled request gets 429 with Retry-After.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rl:http:" + clientAddr(r)

			allowed, err := limiter.Allow(context.Background(), key, limit, window)
			if err != nil || allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", "1")
			rejectJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}

// clientAddr resolves the caller's address, trusting proxy headers when
// present.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
