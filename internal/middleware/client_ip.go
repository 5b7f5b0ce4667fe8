package middleware

import (
	"context"
	"net/http"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

type ctxKey string

const clientIPKey ctxKey = "client_ip"

// ClientIP resolves the caller address once per request and stores it in the context.
// Forwarding headers are honoured only when RemoteAddr is a trusted proxy.
func ClientIP(config *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, config)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey, ip)))
		})
	}
}

// GetClientIP returns the address stored by ClientIP, or the RemoteAddr host
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return pkghttp.ExtractClientIP(r, nil)
}
