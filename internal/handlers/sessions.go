package handlers

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// SessionHandler exposes the calling admin's sessions
type SessionHandler struct {
	sessions SessionServiceInterface
	audit    services.AuditRecorder
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionServiceInterface, audit services.AuditRecorder, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, audit: audit, logger: logger}
}

// SessionResponse is one active session
type SessionResponse struct {
	*models.AdminSession
	Current bool `json:"current"`
}

// List returns the caller's active sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessions, err := h.sessions.ListActive(r.Context(), principal.AdminID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{AdminSession: s, Current: s.ID == principal.SessionID})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// Terminate revokes one of the caller's sessions
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetAdminFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	terminated, err := h.sessions.TerminateOwned(r.Context(), principal.AdminID, id, models.TerminationRevoked)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if terminated {
		h.audit.Record(r.Context(), newAuditEntry(r, models.AuditActionSessionTerminate, models.AuditCategoryAuth, "session", id))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"terminated": terminated})
}
