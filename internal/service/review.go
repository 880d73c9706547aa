package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/infra"
	"github.com/masterbase/platform/internal/repository"
)

// ReviewConsensus records reviewer verdicts and tallies them. It applies no
// threshold; acting on a tally is left to moderation.
type ReviewConsensus struct {
	pool     *pgxpool.Pool
	analysis repository.AnalysisRepository
	reviews  repository.ReviewRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewReviewConsensus creates a ReviewConsensus.
func NewReviewConsensus(
	pool *pgxpool.Pool,
	analysis repository.AnalysisRepository,
	reviews repository.ReviewRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *ReviewConsensus {
	return &ReviewConsensus{
		pool:     pool,
		analysis: analysis,
		reviews:  reviews,
		outbox:   outbox,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SubmitVerdict records one reviewer's verdict on a flagged player.
func (c *ReviewConsensus) SubmitVerdict(ctx context.Context, sessionID, target, reviewer string, verdict domain.Verdict) (*domain.Review, error) {
	if _, err := domain.ParseVerdict(string(verdict)); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateSteamID(reviewer); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rec, err := c.analysis.Find(ctx, tx, sessionID, target)
	if err != nil {
		return nil, domain.ErrInternal("lookup analysis", err)
	}
	if rec == nil {
		return nil, domain.ErrUnknownSubject(sessionID, target)
	}

	rv := &domain.Review{
		SessionID:       sessionID,
		TargetSteamID:   target,
		ReviewerSteamID: reviewer,
		CreatedAt:       c.now(),
		Verdict:         verdict,
	}
	inserted, err := c.reviews.Insert(ctx, tx, rv)
	if err != nil {
		return nil, wrapInternal("insert review", err)
	}
	if !inserted {
		return nil, domain.ErrDuplicateReview()
	}
	if err := c.outbox.Insert(ctx, tx, domain.NewReviewSubmittedEvent(rv)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	infra.ReviewsSubmitted.WithLabelValues(string(verdict)).Inc()
	c.logger.Info("verdict submitted", "session_id", sessionID, "target", target, "reviewer", reviewer, "verdict", verdict)
	return rv, nil
}

// Tally counts verdicts per kind for a subject. A subject nobody reviewed yields an empty tally.
func (c *ReviewConsensus) Tally(ctx context.Context, sessionID, target string) (domain.Tally, error) {
	tally, err := c.reviews.Tally(ctx, c.pool, sessionID, target)
	if err != nil {
		return nil, domain.ErrInternal("tally reviews", err)
	}
	return tally, nil
}

// ListAnalysis returns a session's flagged players, most detections first.
func (c *ReviewConsensus) ListAnalysis(ctx context.Context, sessionID string) ([]domain.AnalysisRecord, error) {
	recs, err := c.analysis.ListBySession(ctx, c.pool, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("list analysis", err)
	}
	return recs, nil
}
