package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/repository"
)

// ReportInput is an end-user report as submitted.
type ReportInput struct {
	SessionID     string `json:"session_id"`
	TargetSteamID string `json:"target_steam_id"`
	Reason        string `json:"reason"`
}

// ReportService accepts end-user reports against players seen in a session.
type ReportService struct {
	pool    *pgxpool.Pool
	keys    *APIKeyAuthority
	reports repository.ReportRepository
	outbox  repository.OutboxRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewReportService creates a ReportService.
func NewReportService(
	pool *pgxpool.Pool,
	keys *APIKeyAuthority,
	reports repository.ReportRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *ReportService {
	return &ReportService{
		pool:    pool,
		keys:    keys,
		reports: reports,
		outbox:  outbox,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a report filed by the holder of apiKey. The session must exist.
func (s *ReportService) Submit(ctx context.Context, apiKey string, in ReportInput) (*domain.Report, error) {
	reason, err := domain.ParseReportReason(in.Reason)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateSessionID(in.SessionID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateSteamID(in.TargetSteamID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cred, err := s.keys.Authorize(ctx, tx, apiKey)
	if err != nil {
		return nil, err
	}

	rp := &domain.Report{
		SessionID:     in.SessionID,
		TargetSteamID: in.TargetSteamID,
		Reason:        reason,
		CreatedAt:     s.now(),
	}
	if err := s.reports.Insert(ctx, tx, rp); err != nil {
		return nil, wrapInternal("insert report", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewReportSubmittedEvent(rp)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("report submitted",
		"session_id", rp.SessionID, "target", rp.TargetSteamID, "reason", rp.Reason, "reporter", cred.SteamID)
	return rp, nil
}
