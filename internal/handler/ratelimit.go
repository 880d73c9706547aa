package handler

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/masterbase/platform/internal/domain"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// RateLimit rejects callers over their budget with 429 and a Retry-After header.
// keyFn picks the caller identity; requests for which it returns "" fall back to the client IP.
func RateLimit(limiter Limiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				key = "ip:" + ClientIP(r)
			}
			ok, retryAfter := limiter.Allow(key)
			if !ok {
				rateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				RespondError(w, domain.ErrRateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
