package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// LoginServiceInterface defines the login flow used by AuthHandler
type LoginServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

// SessionServiceInterface defines session operations used by the handlers
type SessionServiceInterface interface {
	Terminate(ctx context.Context, sessionID, reason string) (bool, error)
	TerminateOwned(ctx context.Context, adminID, sessionID, reason string) (bool, error)
	TerminateAll(ctx context.Context, adminID, reason, exceptSessionID string) (int64, error)
	ListActive(ctx context.Context, adminID string) ([]*models.AdminSession, error)
}

// AuthHandler handles admin login and logout
type AuthHandler struct {
	login    LoginServiceInterface
	sessions SessionServiceInterface
	audit    services.AuditRecorder
	cookies  auth.CookieConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginServiceInterface, sessions SessionServiceInterface, audit services.AuditRecorder, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		login:    login,
		sessions: sessions,
		audit:    audit,
		cookies:  cookies,
		logger:   logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email      string         `json:"email" validate:"required,email,max=254"`
	Password   string         `json:"password" validate:"required,max=1024"`
	DeviceInfo map[string]any `json:"deviceInfo,omitempty"`
}

// AdminResponse is the public view of an admin account
type AdminResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse is returned on successful login. The token is shown only here.
type LoginResponse struct {
	Token           string                  `json:"token"`
	SessionID       string                  `json:"sessionId"`
	ExpiresAt       time.Time               `json:"expiresAt"`
	Admin           AdminResponse           `json:"admin"`
	TwoFactor       *models.TwoFactorStatus `json:"twoFactor,omitempty"`
	PasswordExpired bool                    `json:"passwordExpired"`
}

// Login authenticates an admin and issues a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.login.Login(r.Context(), services.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		IPAddress:  middleware.GetClientIP(r),
		UserAgent:  r.UserAgent(),
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, result.Session.ExpiresAt, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		SessionID: result.Session.ID,
		ExpiresAt: result.Session.ExpiresAt,
		Admin: AdminResponse{
			ID:    result.Admin.ID,
			Email: result.Admin.Email,
			Name:  result.Admin.Name,
			Role:  result.Admin.Role,
		},
		TwoFactor:       result.TwoFactor,
		PasswordExpired: result.PasswordExpired,
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *services.LockedError
	switch {
	case errors.As(err, &locked):
		resp := pkghttp.ErrorResponse{
			Message:   "Account is temporarily locked",
			Code:      pkghttp.CodeAccountLocked,
			Reason:    locked.Status.Reason,
			ExpiresAt: locked.Status.ExpiresAt,
		}
		if locked.Status.ExpiresAt != nil {
			if secs := int(time.Until(*locked.Status.ExpiresAt).Seconds()); secs > 0 {
				resp.RetryAfter = secs
			}
		}
		pkghttp.WriteDenial(w, http.StatusLocked, resp)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeInvalidCredentials, "Invalid email or password")
	default:
		writeServiceError(w, r, h.logger, err)
	}
}

// Logout terminates the calling session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if _, err := h.sessions.Terminate(r.Context(), principal.SessionID, models.TerminationLogout); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.audit.Record(r.Context(), newAuditEntry(r, models.AuditActionLogout, models.AuditCategoryAuth, "session", principal.SessionID))
	auth.ClearSessionCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// LogoutOthers terminates every other session of the calling admin
func (h *AuthHandler) LogoutOthers(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	count, err := h.sessions.TerminateAll(r.Context(), principal.AdminID, models.TerminationLogoutOthers, principal.SessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry := newAuditEntry(r, models.AuditActionLogoutOthers, models.AuditCategoryAuth, "admin", principal.AdminID)
	entry.Metadata = models.AuditMetadata{"terminated": count}
	h.audit.Record(r.Context(), entry)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int64{"terminated": count})
}
