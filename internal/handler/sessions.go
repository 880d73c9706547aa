package handler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/service"
)

// SessionService is the session lifecycle surface used by SessionHandler.
type SessionService interface {
	StartSession(ctx context.Context, apiKey string, params domain.StartSessionParams) (*domain.Session, error)
	CloseSession(ctx context.Context, apiKey string, at time.Time) ([]string, error)
	CloseSessionWithDemo(ctx context.Context, apiKey, sessionID string, at time.Time, demo io.Reader) (*service.DemoReceipt, error)
	AttachLateBytes(ctx context.Context, apiKey string, trailer []byte, at time.Time) (string, error)
	GetLatestSessionID(ctx context.Context, apiKey string) (string, error)
	ListSessions(ctx context.Context, apiKey string) ([]domain.Session, error)
	OpenDemo(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// SessionLimits bounds upload sizes and durations.
type SessionLimits struct {
	DemoMaxBytes int64
	DemoTimeout  time.Duration
	LateBytesMax int
}

// SessionHandler handles the capture-client session endpoints.
type SessionHandler struct {
	sessions SessionService
	limits   SessionLimits
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionService, limits SessionLimits, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		limits:   limits,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start handles POST /sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var params domain.StartSessionParams
	if err := DecodeJSON(r, &params); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	sess, err := h.sessions.StartSession(r.Context(), auth.APIKeyFromContext(r.Context()), params)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, NewSessionView(sess, true))
}

// Close handles POST /sessions/close.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	closed, err := h.sessions.CloseSession(r.Context(), auth.APIKeyFromContext(r.Context()), h.now())
	if err != nil {
		RespondError(w, err)
		return
	}
	if closed == nil {
		closed = []string{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"closed": closed})
}

// UploadDemo handles POST /sessions/{sessionID}/demo. The raw body is the demo.
func (h *SessionHandler) UploadDemo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	ctx := r.Context()
	if h.limits.DemoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.limits.DemoTimeout)
		defer cancel()
		// The server read deadline is sized for ordinary requests.
		_ = http.NewResponseController(w).SetReadDeadline(time.Now().Add(h.limits.DemoTimeout))
	}

	body := http.MaxBytesReader(w, r.Body, h.limits.DemoMaxBytes)
	receipt, err := h.sessions.CloseSessionWithDemo(ctx, auth.APIKeyFromContext(ctx), sessionID, h.now(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, &domain.AppError{
				Code:    "PAYLOAD_TOO_LARGE",
				Message: fmt.Sprintf("demo exceeds %d bytes", tooLarge.Limit),
				Status:  http.StatusRequestEntityTooLarge,
			})
			return
		}
		h.logger.Warn("demo upload failed", "session_id", sessionID, "error", err)
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, receipt)
}

type lateBytesRequest struct {
	LateBytes string `json:"late_bytes"`
}

// LateBytes handles POST /sessions/late_bytes with a hex-encoded trailer.
func (h *SessionHandler) LateBytes(w http.ResponseWriter, r *http.Request) {
	var req lateBytesRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	trailer, err := hex.DecodeString(req.LateBytes)
	if err != nil {
		RespondError(w, domain.ErrValidation("late_bytes must be hex encoded"))
		return
	}
	if len(trailer) == 0 {
		RespondError(w, domain.ErrValidation("late_bytes is required"))
		return
	}
	if len(trailer) > h.limits.LateBytesMax {
		RespondError(w, domain.ErrValidation(fmt.Sprintf("late_bytes exceeds %d bytes", h.limits.LateBytesMax)))
		return
	}

	sessionID, err := h.sessions.AttachLateBytes(r.Context(), auth.APIKeyFromContext(r.Context()), trailer, h.now())
	if err != nil {
		RespondError(w, err)
		return
	}
	if sessionID == "" {
		RespondError(w, domain.ErrNotFound("session", "for api key"))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

// Latest handles GET /sessions/latest.
func (h *SessionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.sessions.GetLatestSessionID(r.Context(), auth.APIKeyFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	if sessionID == "" {
		RespondError(w, domain.ErrNotFound("session", "for api key"))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

// List handles GET /sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context(), auth.APIKeyFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"sessions": NewSessionViews(sessions, true)})
}

// DownloadDemo handles GET /demos/{sessionID}. It streams the blob followed by
// any late bytes.
func (h *SessionHandler) DownloadDemo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	rc, err := h.sessions.OpenDemo(r.Context(), sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.dem"`, sessionID))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("demo download interrupted", "session_id", sessionID, "error", err)
	}
}
