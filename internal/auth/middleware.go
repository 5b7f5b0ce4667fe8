package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AdminContextKey holds the authenticated *models.AdminPrincipal
	AdminContextKey contextKey = "admin"
	// SessionContextKey holds the validated *models.AdminSession
	SessionContextKey contextKey = "session"
)

// SessionValidator validates and refreshes sessions by token hash
type SessionValidator interface {
	Validate(ctx context.Context, tokenHash string) (*models.SessionValidation, error)
	Touch(ctx context.Context, tokenHash string) error
}

// AdminLookup loads the admin behind a session
type AdminLookup interface {
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
}

// TwoFactorResolver resolves the 2FA requirement for an admin
type TwoFactorResolver interface {
	Resolve(ctx context.Context, adminID, role string) (*models.TwoFactorStatus, error)
}

// BearerToken returns the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SessionToken returns the bearer token, falling back to the session cookie
func SessionToken(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	token, err := GetSessionCookie(r)
	if err != nil {
		return ""
	}
	return token
}

// SessionGate validates the admin session behind the request's token, refreshes its
// activity and attaches the principal and session to the context
func SessionGate(sessions SessionValidator, admins AdminLookup, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := SessionToken(r)
			if token == "" {
				writeSessionInvalid(w, "missing token")
				return
			}
			tokenHash := pkgauth.HashToken(token)

			result, err := sessions.Validate(ctx, tokenHash)
			if err != nil {
				logger.ErrorContext(ctx, "session validation failed", slog.Any("error", err))
				pkghttp.WriteSecurityUnavailable(w)
				return
			}
			if !result.Valid {
				logger.InfoContext(ctx, "session rejected", slog.String("reason", result.Reason))
				writeSessionInvalid(w, result.Reason)
				return
			}

			if err := sessions.Touch(ctx, tokenHash); err != nil {
				logger.WarnContext(ctx, "failed to refresh session activity",
					slog.String("session_id", result.Session.ID),
					slog.Any("error", err),
				)
			}

			admin, err := admins.GetByID(ctx, result.Session.AdminID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					writeSessionInvalid(w, "admin not found")
					return
				}
				logger.ErrorContext(ctx, "failed to load session admin", slog.Any("error", err))
				pkghttp.WriteSecurityUnavailable(w)
				return
			}
			if !admin.IsActive {
				writeSessionInvalid(w, "admin disabled")
				return
			}

			principal := &models.AdminPrincipal{
				AdminID:   admin.ID,
				Email:     admin.Email,
				Role:      admin.Role,
				SessionID: result.Session.ID,
			}
			ctx = context.WithValue(ctx, AdminContextKey, principal)
			ctx = context.WithValue(ctx, SessionContextKey, result.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeSessionInvalid(w http.ResponseWriter, reason string) {
	pkghttp.WriteDenial(w, http.StatusUnauthorized, pkghttp.ErrorResponse{
		Message: "Session is invalid",
		Code:    pkghttp.CodeSessionInvalid,
		Reason:  reason,
	})
}

// RequireTwoFactor blocks admins whose 2FA requirement is not met.
// Must run after SessionGate.
func RequireTwoFactor(resolver TwoFactorResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetAdminFromContext(r)
			if principal == nil {
				writeSessionInvalid(w, "missing session")
				return
			}

			status, err := resolver.Resolve(r.Context(), principal.AdminID, principal.Role)
			if err != nil {
				logger.ErrorContext(r.Context(), "two-factor resolution failed", slog.Any("error", err))
				pkghttp.WriteSecurityUnavailable(w)
				return
			}

			switch {
			case status.SetupRequired():
				pkghttp.WriteError(w, http.StatusForbidden, pkghttp.Code2FASetupRequired, "Two-factor authentication setup is required")
				return
			case status.VerificationRequired():
				pkghttp.WriteError(w, http.StatusForbidden, pkghttp.Code2FAVerifyRequired, "Two-factor authentication verification is required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetAdminFromContext returns the authenticated admin, or nil
func GetAdminFromContext(r *http.Request) *models.AdminPrincipal {
	principal, ok := r.Context().Value(AdminContextKey).(*models.AdminPrincipal)
	if !ok {
		return nil
	}
	return principal
}

// GetSessionFromContext returns the validated session, or nil
func GetSessionFromContext(r *http.Request) *models.AdminSession {
	session, ok := r.Context().Value(SessionContextKey).(*models.AdminSession)
	if !ok {
		return nil
	}
	return session
}

// WithAdmin attaches a principal to ctx
func WithAdmin(ctx context.Context, principal *models.AdminPrincipal) context.Context {
	return context.WithValue(ctx, AdminContextKey, principal)
}
