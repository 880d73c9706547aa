package repository

import (
	"context"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/masterbase/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// CredentialRepository provides access to api_keys and beta_tester_steam_ids.
type CredentialRepository interface {
	// FindBySteamID returns the credential for an identity, or nil if none exists.
	FindBySteamID(ctx context.Context, db DBTX, steamID string) (*domain.Credential, error)

	// FindByAPIKey returns the credential owning a key, or nil if the key is unknown.
	FindByAPIKey(ctx context.Context, db DBTX, apiKey string) (*domain.Credential, error)

	// LockByAPIKey takes a share lock on the credential row so a concurrent rotation
	// cannot invalidate the key mid-transaction. Returns nil if the key is unknown.
	LockByAPIKey(ctx context.Context, tx pgx.Tx, apiKey string) (*domain.Credential, error)

	// Insert creates a credential. Returns AlreadyProvisioned if the identity has one.
	Insert(ctx context.Context, db DBTX, cred *domain.Credential) error

	// UpdateKey overwrites the key in place. Returns nil if the identity has no credential.
	UpdateKey(ctx context.Context, db DBTX, steamID, apiKey string, at time.Time) (*domain.Credential, error)

	// IsPrivileged reports whether the identity is on the early-access allowlist.
	IsPrivileged(ctx context.Context, db DBTX, steamID string) (bool, error)
}

// SessionRepository provides access to demo_sessions.
type SessionRepository interface {
	// Insert creates an active session. A second active session for the same key
	// fails with SessionAlreadyActive; a reused session id fails with Conflict.
	Insert(ctx context.Context, db DBTX, s *domain.Session) error

	// HasActive reports whether the key owns an active session.
	HasActive(ctx context.Context, db DBTX, apiKey string) (bool, error)

	// CloseActive closes every active session of the key and returns their ids.
	CloseActive(ctx context.Context, db DBTX, apiKey string, at time.Time) ([]string, error)

	// LockOwned locks the session row if it belongs to the key; nil otherwise.
	LockOwned(ctx context.Context, tx pgx.Tx, apiKey, sessionID string) (*domain.Session, error)

	// FinalizeWithDemo closes the session and records its demo blob reference.
	FinalizeWithDemo(ctx context.Context, db DBTX, apiKey, sessionID string, oid uint32, at time.Time) error

	// PatchLateBytes overwrites the trailer on the key's most recently touched session
	// and returns its id, or "" if the key owns no session.
	PatchLateBytes(ctx context.Context, db DBTX, apiKey string, lateBytes []byte, at time.Time) (string, error)

	// LatestSessionID returns the id with the greatest start time, or "" if none.
	LatestSessionID(ctx context.Context, db DBTX, apiKey string) (string, error)

	// ListByAPIKey returns the key's sessions, newest first.
	ListByAPIKey(ctx context.Context, db DBTX, apiKey string) ([]domain.Session, error)

	// FindByID returns a session by id, or nil if not found.
	FindByID(ctx context.Context, db DBTX, sessionID string) (*domain.Session, error)

	// MarkIngested sets ingested without touching updated_at.
	MarkIngested(ctx context.Context, db DBTX, sessionID string) error
}

// AnalysisRepository provides access to analysis and ingest_batches.
type AnalysisRepository interface {
	// AddDetections increments the counter for (session, target), creating it on first sight.
	AddDetections(ctx context.Context, db DBTX, sessionID, target string, n int64, at time.Time) error

	// RecordBatch registers a batch id for the session. Returns false if it was already recorded.
	RecordBatch(ctx context.Context, db DBTX, sessionID, batchID string, at time.Time) (bool, error)

	// Find returns one analysis record, or nil if not found.
	Find(ctx context.Context, db DBTX, sessionID, target string) (*domain.AnalysisRecord, error)

	// ListBySession returns all records of a session ordered by detection count, highest first.
	ListBySession(ctx context.Context, db DBTX, sessionID string) ([]domain.AnalysisRecord, error)
}

// ReviewRepository provides access to reviews.
type ReviewRepository interface {
	// Insert records a verdict. Returns false if the reviewer already judged the subject.
	Insert(ctx context.Context, db DBTX, r *domain.Review) (bool, error)

	// Tally counts verdicts for a subject.
	Tally(ctx context.Context, db DBTX, sessionID, target string) (domain.Tally, error)
}

// ReportRepository provides access to reports.
type ReportRepository interface {
	// Insert records a report and fills its id.
	Insert(ctx context.Context, db DBTX, r *domain.Report) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the mutation).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// ClaimUnpublished locks a batch of unpublished events, skipping rows held by other publishers.
	ClaimUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRow, error)

	// MarkPublished stamps publishedAt on the given rows.
	MarkPublished(ctx context.Context, db DBTX, ids []int64, at time.Time) error
}

// ExportRepository streams whitelisted tables out as CSV.
type ExportRepository interface {
	// CopyCSV writes the table with a header row to w.
	CopyCSV(ctx context.Context, conn *pgconn.PgConn, table domain.ExportTable, w io.Writer) (int64, error)
}
