package repository

import (
	"context"
	"fmt"

	"github.com/masterbase/platform/internal/domain"
)

type reviewRepo struct{}

// NewReviewRepository returns a pgx-backed ReviewRepository.
func NewReviewRepository() ReviewRepository {
	return &reviewRepo{}
}

func (r *reviewRepo) Insert(ctx context.Context, db DBTX, rv *domain.Review) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO reviews (session_id, target_steam_id, reviewer_steam_id, created_at, verdict)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, target_steam_id, reviewer_steam_id) DO NOTHING`,
		rv.SessionID, rv.TargetSteamID, rv.ReviewerSteamID, rv.CreatedAt, string(rv.Verdict))
	if _, ok := foreignKeyViolation(err); ok {
		return false, domain.ErrUnknownSubject(rv.SessionID, rv.TargetSteamID)
	}
	if err != nil {
		return false, fmt.Errorf("insert review: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *reviewRepo) Tally(ctx context.Context, db DBTX, sessionID, target string) (domain.Tally, error) {
	rows, err := db.Query(ctx, `
		SELECT verdict, count(*) FROM reviews
		WHERE session_id = $1 AND target_steam_id = $2
		GROUP BY verdict`, sessionID, target)
	if err != nil {
		return nil, fmt.Errorf("tally reviews: %w", err)
	}
	defer rows.Close()

	tally := domain.Tally{}
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tally[domain.Verdict(verdict)] = n
	}
	return tally, rows.Err()
}
