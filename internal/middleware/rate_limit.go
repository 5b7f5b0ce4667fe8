package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/bastion/internal/ratelimit"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimit applies the fixed-window limiter keyed by client address
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)
			d := limiter.Check(r.Context(), ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			if !d.Allowed {
				logger.InfoContext(r.Context(), "rate limited",
					slog.String("ip_address", ip),
					slog.Int64("count", d.Count),
					slog.Int("retry_after", d.RetryAfter),
				)
				pkghttp.WriteDenial(w, http.StatusTooManyRequests, pkghttp.ErrorResponse{
					Message:    "Too many requests",
					Code:       pkghttp.CodeRateLimited,
					RetryAfter: d.RetryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginBurstLimit caps login requests per client address per minute, on top of the
// shared window. It keys on the address resolved by ClientIP.
func LoginBurstLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return GetClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			retryAfter, _ := strconv.Atoi(w.Header().Get("Retry-After"))
			if retryAfter <= 0 {
				retryAfter = 60
			}
			pkghttp.WriteDenial(w, http.StatusTooManyRequests, pkghttp.ErrorResponse{
				Message:    "Too many login attempts",
				Code:       pkghttp.CodeRateLimited,
				RetryAfter: retryAfter,
			})
		}),
	)
}
