package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/materna-health/ai-gateway/internal/auth"
	"github.com/materna-health/ai-gateway/internal/httputil"
	"github.com/materna-health/ai-gateway/internal/telemetry"
)

const (
	headerRateLimitRequests  = "X-RateLimit-Limit-Requests"
	headerRateLimitRemaining = "X-RateLimit-Remaining-Requests"
	headerRetryAfter         = "Retry-After"
)

// Middleware enforces the per-user budget for one route. It must run after
// the auth middleware: the bucket is keyed by the authenticated user, so an
// unauthenticated request never consumes budget.
func Middleware(limiter *Limiter, route string, limitFor func() int, windowFor func() time.Duration, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				httputil.WriteAuthError(w, reqID, "Not authenticated")
				return
			}

			limit := int64(limitFor())
			window := windowFor()

			result := limiter.Check(r.Context(), route+":"+identity.UserID, limit, window)

			w.Header().Set(headerRateLimitRequests, strconv.FormatInt(limit, 10))
			w.Header().Set(headerRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}

				source := "redis"
				if result.Degraded {
					source = "local"
				}
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"user_id", identity.UserID,
					"route", route,
					"limit", limit,
					"retry_after_s", retryAfter,
					"source", source,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit(route, source)
				}

				w.Header().Set(headerRetryAfter, strconv.Itoa(retryAfter))
				httputil.WriteRateLimitError(w, reqID, retryAfter,
					fmt.Sprintf("Rate limit exceeded: %d requests per %s. Retry after %d seconds", limit, window, retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
