package middleware

import (
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/ratelimit"
)

// RateLimit allows limit requests per window for each client IP and path.
// Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := int(math.Ceil(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + ":" + r.URL.Path
			ok, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				log.Printf("[ratelimit] limiter error for %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				apperr.Write(w, apperr.RateLimited(retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on chi's RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
