package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// IPRuleServiceInterface defines ip rule management
type IPRuleServiceInterface interface {
	Create(ctx context.Context, rule *models.IPRule) (*models.IPRule, error)
	ListActive(ctx context.Context) ([]models.IPRule, error)
	Deactivate(ctx context.Context, id string) (*models.IPRule, error)
}

// IPRuleHandler manages ip allow/deny rules
type IPRuleHandler struct {
	service IPRuleServiceInterface
	audit   services.AuditRecorder
	logger  *slog.Logger
}

// NewIPRuleHandler creates a new IPRuleHandler
func NewIPRuleHandler(service IPRuleServiceInterface, audit services.AuditRecorder, logger *slog.Logger) *IPRuleHandler {
	return &IPRuleHandler{service: service, audit: audit, logger: logger}
}

// CreateIPRuleRequest represents the request body for a new rule
type CreateIPRuleRequest struct {
	RuleType    string     `json:"ruleType" validate:"required,oneof=whitelist blacklist"`
	IPPattern   string     `json:"ipPattern" validate:"required,max=18"`
	Description string     `json:"description" validate:"max=255"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// List returns the rules currently in effect
func (h *IPRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// Create adds a rule
func (h *IPRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req CreateIPRuleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rule, err := h.service.Create(r.Context(), &models.IPRule{
		RuleType:    models.IPRuleType(req.RuleType),
		IPPattern:   req.IPPattern,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		CreatedBy:   principal.AdminID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry := newAuditEntry(r, models.AuditActionIPRuleCreate, models.AuditCategorySecurity, "ip_rule", rule.ID)
	entry.NewValue = marshalAuditValue(rule)
	h.audit.Record(r.Context(), entry)

	pkghttp.WriteJSON(w, http.StatusCreated, rule)
}

// Delete deactivates a rule
func (h *IPRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rule, err := h.service.Deactivate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry := newAuditEntry(r, models.AuditActionIPRuleDelete, models.AuditCategorySecurity, "ip_rule", id)
	entry.OldValue = marshalAuditValue(rule)
	h.audit.Record(r.Context(), entry)

	pkghttp.WriteJSON(w, http.StatusOK, rule)
}
