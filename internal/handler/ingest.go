package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/masterbase/platform/internal/domain"
)

// IdempotencyKeyHeader names the optional batch id for ingest replays.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxIngestBody caps a single detection batch.
const maxIngestBody = 32 << 20

// Ingester applies detection batches.
type Ingester interface {
	Ingest(ctx context.Context, params domain.IngestParams) (*domain.IngestResult, error)
}

// IngestHandler handles detection batch submission from analysis clients.
type IngestHandler struct {
	pipeline Ingester
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(pipeline Ingester) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

type ingestRequest struct {
	Detections []domain.Detection `json:"detections"`
}

// Ingest handles POST /ingest/{sessionID}.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := DecodeJSONLimit(r, &req, maxIngestBody); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), domain.IngestParams{
		SessionID:  chi.URLParam(r, "sessionID"),
		BatchID:    r.Header.Get(IdempotencyKeyHeader),
		Detections: req.Detections,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
