package repository

import (
	"context"
	"fmt"

	"github.com/masterbase/platform/internal/domain"
)

type reportRepo struct{}

// NewReportRepository returns a pgx-backed ReportRepository.
func NewReportRepository() ReportRepository {
	return &reportRepo{}
}

func (r *reportRepo) Insert(ctx context.Context, db DBTX, rp *domain.Report) error {
	err := db.QueryRow(ctx, `
		INSERT INTO reports (session_id, target_steam_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rp.SessionID, rp.TargetSteamID, string(rp.Reason), rp.CreatedAt).Scan(&rp.ID)
	if _, ok := foreignKeyViolation(err); ok {
		return domain.ErrNotFound("session", rp.SessionID)
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}
