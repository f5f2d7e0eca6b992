package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/healthcure/clinic/internal/http/response"
	"github.com/healthcure/clinic/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter in Redis, keyed per client IP. It
// fails open: when Redis is unreachable, requests pass and the outage is
// logged, because login availability beats limiter strictness here.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limit guards a route group. The key includes the route pattern so login
// and verify-code windows count separately.
func (l *RateLimiter) Limit(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.client == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("ratelimit:%s:%s", name, clientIP(r))

			count, err := l.client.Incr(r.Context(), key).Result()
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				l.client.Expire(r.Context(), key, l.window)
			}
			if count > int64(l.limit) {
				response.Error(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
