package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// LockoutServiceInterface defines lockout administration
type LockoutServiceInterface interface {
	ListActive(ctx context.Context) ([]*models.AccountLockout, error)
	Unlock(ctx context.Context, lockoutID, unlockedBy string) (*models.AccountLockout, error)
	LockIP(ctx context.Context, ip, reason string, duration time.Duration, lockedBy string) (*models.AccountLockout, error)
	RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

// LockoutHandler exposes lockouts and login attempts
type LockoutHandler struct {
	service LockoutServiceInterface
	audit   services.AuditRecorder
	logger  *slog.Logger
}

// NewLockoutHandler creates a new LockoutHandler
func NewLockoutHandler(service LockoutServiceInterface, audit services.AuditRecorder, logger *slog.Logger) *LockoutHandler {
	return &LockoutHandler{service: service, audit: audit, logger: logger}
}

// LockIPRequest represents the request body for a manual ip lockout
type LockIPRequest struct {
	IPAddress       string `json:"ipAddress" validate:"required,ip"`
	Reason          string `json:"reason" validate:"max=255"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,gte=1,lte=10080"`
}

// LoginAttemptResponse is one recorded attempt
type LoginAttemptResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failureReason,omitempty"`
	AttemptedAt   time.Time `json:"attemptedAt"`
}

// List returns active lockouts
func (h *LockoutHandler) List(w http.ResponseWriter, r *http.Request) {
	lockouts, err := h.service.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"lockouts": lockouts})
}

// Unlock releases a lockout early
func (h *LockoutHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	lockout, err := h.service.Unlock(r.Context(), id, principal.AdminID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry := newAuditEntry(r, models.AuditActionLockoutUnlock, models.AuditCategorySecurity, "lockout", id)
	entry.NewValue = marshalAuditValue(lockout)
	h.audit.Record(r.Context(), entry)

	pkghttp.WriteJSON(w, http.StatusOK, lockout)
}

// LockIP creates a manual ip lockout
func (h *LockoutHandler) LockIP(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req LockIPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	lockout, err := h.service.LockIP(r.Context(), req.IPAddress, req.Reason, time.Duration(req.DurationMinutes)*time.Minute, principal.AdminID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry := newAuditEntry(r, models.AuditActionLockoutCreate, models.AuditCategorySecurity, "lockout", lockout.ID)
	entry.NewValue = marshalAuditValue(lockout)
	h.audit.Record(r.Context(), entry)

	pkghttp.WriteJSON(w, http.StatusCreated, lockout)
}

// LoginAttempts returns recent attempts for ?email=
func (h *LockoutHandler) LoginAttempts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := validate.Var(email, "required,email"); err != nil {
		pkghttp.WriteBadRequest(w, "email query parameter must be a valid email address")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.service.RecentAttempts(r.Context(), email, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]LoginAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, LoginAttemptResponse{
			ID:            a.ID,
			Email:         a.Email,
			IPAddress:     a.IPAddress,
			UserAgent:     a.UserAgent,
			Success:       a.Success,
			FailureReason: a.FailureReason,
			AttemptedAt:   a.AttemptedAt,
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"attempts": out})
}
