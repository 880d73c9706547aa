package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
)

// ReviewService records reviewer verdicts and reports consensus.
type ReviewService interface {
	SubmitVerdict(ctx context.Context, sessionID, target, reviewer string, verdict domain.Verdict) (*domain.Review, error)
	Tally(ctx context.Context, sessionID, target string) (domain.Tally, error)
	ListAnalysis(ctx context.Context, sessionID string) ([]domain.AnalysisRecord, error)
}

// ReviewHandler handles the reviewer endpoints.
type ReviewHandler struct {
	reviews ReviewService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviews ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// ListAnalysis handles GET /reviews/{sessionID}.
func (h *ReviewHandler) ListAnalysis(w http.ResponseWriter, r *http.Request) {
	records, err := h.reviews.ListAnalysis(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondError(w, err)
		return
	}
	if records == nil {
		records = []domain.AnalysisRecord{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"analysis": records})
}

type verdictRequest struct {
	Verdict string `json:"verdict"`
}

// SubmitVerdict handles POST /reviews/{sessionID}/{targetSteamID}.
func (h *ReviewHandler) SubmitVerdict(w http.ResponseWriter, r *http.Request) {
	var req verdictRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	verdict, err := domain.ParseVerdict(req.Verdict)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	review, err := h.reviews.SubmitVerdict(r.Context(),
		chi.URLParam(r, "sessionID"),
		chi.URLParam(r, "targetSteamID"),
		auth.SubjectFromContext(r.Context()),
		verdict,
	)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, review)
}

type tallyResponse struct {
	SessionID     string       `json:"session_id"`
	TargetSteamID string       `json:"target_steam_id"`
	Verdicts      domain.Tally `json:"verdicts"`
	Total         int          `json:"total"`
}

// Tally handles GET /reviews/{sessionID}/{targetSteamID}/tally.
func (h *ReviewHandler) Tally(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	target := chi.URLParam(r, "targetSteamID")

	tally, err := h.reviews.Tally(r.Context(), sessionID, target)
	if err != nil {
		RespondError(w, err)
		return
	}
	if tally == nil {
		tally = domain.Tally{}
	}
	RespondJSON(w, http.StatusOK, tallyResponse{
		SessionID:     sessionID,
		TargetSteamID: target,
		Verdicts:      tally,
		Total:         tally.Total(),
	})
}
