package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// AuditQueryInterface defines audit log queries
type AuditQueryInterface interface {
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, int64, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	service AuditQueryInterface
	logger  *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditQueryInterface, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{service: service, logger: logger}
}

// AuditListQuery holds the supported filters
type AuditListQuery struct {
	ActorID   string `validate:"omitempty,uuid"`
	Category  string `validate:"omitempty,oneof=auth tenant user config security support"`
	RiskLevel string `validate:"omitempty,oneof=low medium high"`
	Action    string `validate:"omitempty,max=100"`
	Limit     int    `validate:"gte=0,lte=500"`
	Offset    int    `validate:"gte=0"`
}

// AuditListResponse is one page of entries
type AuditListResponse struct {
	Entries []*models.AuditLogEntry `json:"entries"`
	Total   int64                   `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// List returns audit entries filtered by actor_id, category, risk_level and action
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := AuditListQuery{
		ActorID:   q.Get("actor_id"),
		Category:  q.Get("category"),
		RiskLevel: q.Get("risk_level"),
		Action:    q.Get("action"),
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if query.Limit, err = strconv.Atoi(v); err != nil {
			pkghttp.WriteBadRequest(w, "limit must be a number")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if query.Offset, err = strconv.Atoi(v); err != nil {
			pkghttp.WriteBadRequest(w, "offset must be a number")
			return
		}
	}
	if err := ValidateRequest(query); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	filter := models.AuditFilter{
		ActorID:   query.ActorID,
		Category:  models.AuditCategory(query.Category),
		RiskLevel: models.RiskLevel(query.RiskLevel),
		Action:    query.Action,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}

	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditLogEntry{}
	}

	limit := filter.Limit
	if limit == 0 {
		limit = len(entries)
	}
	pkghttp.WriteJSON(w, http.StatusOK, AuditListResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
	})
}
