package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/handler"
)

// PlayerSessions lists sessions captured under a player's key.
type PlayerSessions interface {
	ListSessionsFor(ctx context.Context, steamID string) ([]domain.Session, error)
}

// PlayerAdminHandler handles admin player lookups.
type PlayerAdminHandler struct {
	sessions PlayerSessions
}

// NewPlayerAdminHandler creates a new PlayerAdminHandler.
func NewPlayerAdminHandler(sessions PlayerSessions) *PlayerAdminHandler {
	return &PlayerAdminHandler{sessions: sessions}
}

// ListSessions handles GET /admin/players/{steamID}/sessions. Keys are redacted.
func (h *PlayerAdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	steamID := chi.URLParam(r, "steamID")
	if err := domain.ValidateSteamID(steamID); err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	sessions, err := h.sessions.ListSessionsFor(r.Context(), steamID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"steam_id": steamID,
		"sessions": handler.NewSessionViews(sessions, false),
	})
}
