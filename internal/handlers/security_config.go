package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// SecurityConfigServiceInterface defines the policy store used by the handler
type SecurityConfigServiceInterface interface {
	Get(ctx context.Context) (*models.SecurityConfig, error)
	Update(ctx context.Context, overrides *models.SecurityConfigOverrides, updatedBy string) (*models.SecurityConfig, *models.SecurityConfig, error)
}

// SecurityConfigHandler reads and updates the security policy
type SecurityConfigHandler struct {
	service SecurityConfigServiceInterface
	audit   services.AuditRecorder
	logger  *slog.Logger
}

// NewSecurityConfigHandler creates a new SecurityConfigHandler
func NewSecurityConfigHandler(service SecurityConfigServiceInterface, audit services.AuditRecorder, logger *slog.Logger) *SecurityConfigHandler {
	return &SecurityConfigHandler{service: service, audit: audit, logger: logger}
}

// Get returns the effective policy
func (h *SecurityConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load security config", slog.Any("error", err))
		pkghttp.WriteSecurityUnavailable(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, cfg)
}

// Update applies a partial override and records the before/after values
func (h *SecurityConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req models.SecurityConfigOverrides
	if !decodeAndValidate(w, r, &req) {
		return
	}

	previous, next, err := h.service.Update(r.Context(), &req, principal.AdminID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry := newAuditEntry(r, models.AuditActionConfigUpdate, models.AuditCategoryConfig, "security_config", "")
	entry.OldValue = marshalAuditValue(previous)
	entry.NewValue = marshalAuditValue(next)
	entry.Metadata = models.AuditMetadata{"version": next.Version}
	h.audit.Record(r.Context(), entry)

	pkghttp.WriteJSON(w, http.StatusOK, next)
}
