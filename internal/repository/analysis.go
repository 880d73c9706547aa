package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/masterbase/platform/internal/domain"
)

type analysisRepo struct{}

// NewAnalysisRepository returns a pgx-backed AnalysisRepository.
func NewAnalysisRepository() AnalysisRepository {
	return &analysisRepo{}
}

// AddDetections uses server-side arithmetic so concurrent batches never lose an increment.
func (r *analysisRepo) AddDetections(ctx context.Context, db DBTX, sessionID, target string, n int64, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO analysis (session_id, target_steam_id, created_at, detection_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, target_steam_id)
		DO UPDATE SET detection_count = analysis.detection_count + EXCLUDED.detection_count`,
		sessionID, target, at, n)
	if err != nil {
		return fmt.Errorf("upsert analysis %s/%s: %w", sessionID, target, err)
	}
	return nil
}

func (r *analysisRepo) RecordBatch(ctx context.Context, db DBTX, sessionID, batchID string, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO ingest_batches (session_id, batch_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, sessionID, batchID, at)
	if err != nil {
		return false, fmt.Errorf("record ingest batch: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *analysisRepo) Find(ctx context.Context, db DBTX, sessionID, target string) (*domain.AnalysisRecord, error) {
	rows, err := db.Query(ctx, `SELECT `+selectList(analysisColumns)+` FROM analysis
		WHERE session_id = $1 AND target_steam_id = $2`, sessionID, target)
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	rec, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[domain.AnalysisRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	return rec, nil
}

func (r *analysisRepo) ListBySession(ctx context.Context, db DBTX, sessionID string) ([]domain.AnalysisRecord, error) {
	rows, err := db.Query(ctx, `SELECT `+selectList(analysisColumns)+` FROM analysis
		WHERE session_id = $1
		ORDER BY detection_count DESC, target_steam_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list analysis: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.AnalysisRecord])
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	return recs, nil
}
