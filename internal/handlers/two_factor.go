package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// TwoFactorServiceInterface defines TOTP enrollment operations
type TwoFactorServiceInterface interface {
	Resolve(ctx context.Context, adminID, role string) (*models.TwoFactorStatus, error)
	BeginSetup(ctx context.Context, adminID, email string) (*auth.TOTPEnrollment, error)
	Verify(ctx context.Context, adminID, code string) error
	Disable(ctx context.Context, adminID, code string) error
}

// TwoFactorHandler handles TOTP enrollment for the calling admin
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
	audit   services.AuditRecorder
	logger  *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, audit services.AuditRecorder, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, audit: audit, logger: logger}
}

// TwoFactorCodeRequest carries a 6-digit TOTP code
type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// TwoFactorSetupResponse is shown once when enrollment starts
type TwoFactorSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioningUrl"`
	QRCode          string `json:"qrCode"`
}

// Status returns the caller's resolved 2FA state
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Resolve(r.Context(), principal.AdminID, principal.Role)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Setup starts TOTP enrollment
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	enrollment, err := h.service.BeginSetup(r.Context(), principal.AdminID, principal.Email)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Two-factor authentication is already verified; disable it first")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.audit.Record(r.Context(), newAuditEntry(r, models.AuditActionTwoFactorSetup, models.AuditCategorySecurity, "admin", principal.AdminID))
	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorSetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURL: enrollment.ProvisioningURL,
		QRCode:          enrollment.QRCodeDataURL,
	})
}

// Verify confirms enrollment with a current code
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Verify(r.Context(), principal.AdminID, req.Code); err != nil {
		h.writeTwoFactorError(w, r, err)
		return
	}

	h.audit.Record(r.Context(), newAuditEntry(r, models.AuditActionTwoFactorVerify, models.AuditCategorySecurity, "admin", principal.AdminID))
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Disable removes the caller's enrollment after checking a current code
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Disable(r.Context(), principal.AdminID, req.Code); err != nil {
		h.writeTwoFactorError(w, r, err)
		return
	}

	h.audit.Record(r.Context(), newAuditEntry(r, models.AuditActionTwoFactorDisable, models.AuditCategorySecurity, "admin", principal.AdminID))
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"disabled": true})
}

func (h *TwoFactorHandler) writeTwoFactorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrTwoFactorInvalidCode):
		pkghttp.WriteError(w, http.StatusBadRequest, pkghttp.Code2FAInvalidCode, "Invalid two-factor code")
	case errors.Is(err, models.ErrTwoFactorNotEnrolled):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not enrolled")
	case errors.Is(err, models.ErrTwoFactorRateLimited):
		if principal := auth.GetAdminFromContext(r); principal != nil {
			h.audit.Record(r.Context(), newAuditEntry(r, models.AuditActionTwoFactorLimit, models.AuditCategorySecurity, "admin", principal.AdminID))
		}
		pkghttp.WriteError(w, http.StatusTooManyRequests, pkghttp.CodeRateLimited, "Too many two-factor attempts, try again later")
	default:
		writeServiceError(w, r, h.logger, err)
	}
}
