package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// IPEvaluator decides whether an address may reach the admin surface
type IPEvaluator interface {
	Evaluate(ctx context.Context, ip string) (services.IPDecision, error)
}

// IPGate rejects requests whose client address is blacklisted or, when the whitelist
// is required, not whitelisted. A rule or config load failure denies the request.
func IPGate(evaluator IPEvaluator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)

			decision, err := evaluator.Evaluate(r.Context(), ip)
			if err != nil {
				logger.ErrorContext(r.Context(), "ip rule evaluation failed", slog.Any("error", err))
				pkghttp.WriteSecurityUnavailable(w)
				return
			}

			if !decision.Allowed {
				attrs := []any{
					slog.String("ip_address", ip),
					slog.String("reason", decision.Reason),
					slog.String("path", r.URL.Path),
				}
				if decision.Rule != nil {
					attrs = append(attrs, slog.String("rule_id", decision.Rule.ID))
				}
				logger.WarnContext(r.Context(), "ip restricted", attrs...)

				pkghttp.WriteDenial(w, http.StatusForbidden, pkghttp.ErrorResponse{
					Message: "Access denied from this IP address",
					Code:    pkghttp.CodeIPRestricted,
					Reason:  decision.Reason,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
