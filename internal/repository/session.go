package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/masterbase/platform/internal/domain"
)

const oneActivePerKey = "demo_sessions_one_active_per_key"

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

var sessionSelect = `SELECT ` + selectList(sessionColumns) + ` FROM demo_sessions`

func (r *sessionRepo) Insert(ctx context.Context, db DBTX, s *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO demo_sessions
		  (session_id, api_key, demo_name, active, start_time, end_time, fake_ip, map,
		   steam_api_data, ingested, created_at, updated_at)
		VALUES ($1, $2, $3, true, $4, NULL, $5, $6, NULL, false, $7, $8)`,
		s.SessionID, s.APIKey, s.DemoName, s.StartTime, s.FakeIP, s.Map, s.CreatedAt, s.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == oneActivePerKey {
			return domain.ErrSessionAlreadyActive()
		}
		return domain.ErrConflict(fmt.Sprintf("session %s already exists", s.SessionID))
	}
	if _, ok := foreignKeyViolation(err); ok {
		return domain.ErrUnauthorized("invalid api key")
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) HasActive(ctx context.Context, db DBTX, apiKey string) (bool, error) {
	var active bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM demo_sessions WHERE api_key = $1 AND active)`, apiKey).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check active session: %w", err)
	}
	return active, nil
}

func (r *sessionRepo) CloseActive(ctx context.Context, db DBTX, apiKey string, at time.Time) ([]string, error) {
	rows, err := db.Query(ctx, `
		UPDATE demo_sessions SET active = false, end_time = $2, updated_at = $2
		WHERE api_key = $1 AND active
		RETURNING session_id`, apiKey, at)
	if err != nil {
		return nil, fmt.Errorf("close sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("close sessions: %w", err)
	}
	return ids, nil
}

func (r *sessionRepo) LockOwned(ctx context.Context, tx pgx.Tx, apiKey, sessionID string) (*domain.Session, error) {
	return collectSession(tx.Query(ctx,
		sessionSelect+` WHERE api_key = $1 AND session_id = $2 FOR UPDATE`, apiKey, sessionID))
}

func (r *sessionRepo) FinalizeWithDemo(ctx context.Context, db DBTX, apiKey, sessionID string, oid uint32, at time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE demo_sessions
		SET active = false, end_time = $3, demo_oid = $4, updated_at = $3
		WHERE api_key = $1 AND session_id = $2`,
		apiKey, sessionID, at, oid)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("session", sessionID)
	}
	return nil
}

// PatchLateBytes targets the row with the greatest updated_at. Ties go to the
// latest start_time so exactly one row is patched.
func (r *sessionRepo) PatchLateBytes(ctx context.Context, db DBTX, apiKey string, lateBytes []byte, at time.Time) (string, error) {
	var sessionID string
	err := db.QueryRow(ctx, `
		UPDATE demo_sessions SET late_bytes = $2, updated_at = $3
		WHERE session_id = (
			SELECT session_id FROM demo_sessions
			WHERE api_key = $1
			ORDER BY updated_at DESC, start_time DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING session_id`, apiKey, lateBytes, at).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("patch late bytes: %w", err)
	}
	return sessionID, nil
}

func (r *sessionRepo) LatestSessionID(ctx context.Context, db DBTX, apiKey string) (string, error) {
	var sessionID string
	err := db.QueryRow(ctx, `
		SELECT session_id FROM demo_sessions
		WHERE api_key = $1
		ORDER BY start_time DESC
		LIMIT 1`, apiKey).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return sessionID, nil
}

func (r *sessionRepo) ListByAPIKey(ctx context.Context, db DBTX, apiKey string) ([]domain.Session, error) {
	rows, err := db.Query(ctx, sessionSelect+` WHERE api_key = $1 ORDER BY start_time DESC`, apiKey)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Session])
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, db DBTX, sessionID string) (*domain.Session, error) {
	return collectSession(db.Query(ctx, sessionSelect+` WHERE session_id = $1`, sessionID))
}

func (r *sessionRepo) MarkIngested(ctx context.Context, db DBTX, sessionID string) error {
	_, err := db.Exec(ctx,
		`UPDATE demo_sessions SET ingested = true WHERE session_id = $1 AND NOT ingested`, sessionID)
	if err != nil {
		return fmt.Errorf("mark ingested: %w", err)
	}
	return nil
}

func collectSession(rows pgx.Rows, err error) (*domain.Session, error) {
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	s, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[domain.Session])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}
