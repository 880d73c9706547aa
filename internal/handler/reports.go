package handler

import (
	"context"
	"net/http"

	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/service"
)

// ReportSubmitter accepts end-user reports.
type ReportSubmitter interface {
	Submit(ctx context.Context, apiKey string, in service.ReportInput) (*domain.Report, error)
}

// ReportHandler handles POST /reports.
type ReportHandler struct {
	reports ReportSubmitter
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports ReportSubmitter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Submit handles POST /reports.
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in service.ReportInput
	if err := DecodeJSON(r, &in); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	rp, err := h.reports.Submit(r.Context(), auth.APIKeyFromContext(r.Context()), in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rp)
}
