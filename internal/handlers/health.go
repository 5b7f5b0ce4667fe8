package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// HealthChecker is satisfied by *database.DB
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AuditStatsProvider exposes the audit pipeline counters
type AuditStatsProvider interface {
	Stats() services.AuditStats
}

// HealthHandler reports database reachability and audit pipeline state
type HealthHandler struct {
	db     HealthChecker
	audit  AuditStatsProvider
	logger *slog.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db HealthChecker, audit AuditStatsProvider, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, audit: audit, logger: logger}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string               `json:"status"`
	Database string               `json:"database"`
	Audit    *services.AuditStats `json:"audit,omitempty"`
}

// Health returns 200 when the database answers a ping, 503 otherwise
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Database: "up"}
	if h.audit != nil {
		stats := h.audit.Stats()
		resp.Audit = &stats
	}

	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", slog.Any("error", err))
		resp.Status = "unhealthy"
		resp.Database = "down"
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
