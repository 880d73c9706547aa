package handler

import (
	"context"
	"net/http"

	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
)

// KeyService provisions and rotates API keys for an authenticated player.
type KeyService interface {
	Provision(ctx context.Context, steamID string) (*domain.Credential, error)
	Rotate(ctx context.Context, steamID string) (*domain.Credential, error)
	Info(ctx context.Context, steamID string) (*domain.Credential, error)
}

// KeyHandler handles the player API key endpoints.
type KeyHandler struct {
	keys KeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// Provision handles POST /keys.
func (h *KeyHandler) Provision(w http.ResponseWriter, r *http.Request) {
	cred, err := h.keys.Provision(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, cred)
}

// Rotate handles POST /keys/rotate.
func (h *KeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	cred, err := h.keys.Rotate(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cred)
}

// Info handles GET /keys.
func (h *KeyHandler) Info(w http.ResponseWriter, r *http.Request) {
	cred, err := h.keys.Info(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cred)
}
