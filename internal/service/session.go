package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/blobstore"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/infra"
	"github.com/masterbase/platform/internal/repository"
)

// BlobStore persists demo captures. Uploads are staged with Stage before the
// transaction that writes them begins.
type BlobStore interface {
	Stage(ctx context.Context, r io.Reader) (*blobstore.Spool, error)
	Write(ctx context.Context, tx pgx.Tx, r io.Reader) (uint32, int64, error)
	Open(ctx context.Context, oid uint32) (io.ReadCloser, error)
}

// DemoReceipt describes a demo stored at close.
type DemoReceipt struct {
	SessionID string `json:"session_id"`
	SizeBytes int64  `json:"size_bytes"`
}

// SessionRegistry drives the capture-session state machine. Every transition runs
// in one transaction that first re-validates the caller's key.
type SessionRegistry struct {
	pool     *pgxpool.Pool
	keys     *APIKeyAuthority
	blobs    BlobStore
	sessions repository.SessionRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionRegistry creates a SessionRegistry.
func NewSessionRegistry(
	pool *pgxpool.Pool,
	keys *APIKeyAuthority,
	blobs BlobStore,
	sessions repository.SessionRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		pool:     pool,
		keys:     keys,
		blobs:    blobs,
		sessions: sessions,
		outbox:   outbox,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSession opens a new active session for the key. The pre-check gives the
// common case a clean error; the partial unique index decides concurrent races.
func (r *SessionRegistry) StartSession(ctx context.Context, apiKey string, params domain.StartSessionParams) (*domain.Session, error) {
	if err := params.Validate(); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cred, err := r.keys.Authorize(ctx, tx, apiKey)
	if err != nil {
		return nil, err
	}

	active, err := r.sessions.HasActive(ctx, tx, cred.APIKey)
	if err != nil {
		return nil, domain.ErrInternal("check active session", err)
	}
	if active {
		return nil, domain.ErrSessionAlreadyActive()
	}

	now := r.now()
	s := &domain.Session{
		SessionID: params.SessionID,
		APIKey:    cred.APIKey,
		DemoName:  params.DemoName,
		Active:    true,
		StartTime: now,
		FakeIP:    params.FakeIP,
		Map:       params.Map,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.sessions.Insert(ctx, tx, s); err != nil {
		return nil, wrapInternal("insert session", err)
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewSessionStartedEvent(s)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	infra.SessionsStarted.Inc()
	r.logger.Info("session started", "session_id", s.SessionID, "steam_id", cred.SteamID)
	return s, nil
}

// CloseSession closes every active session of the key. Closing with nothing
// active succeeds and returns no ids.
func (r *SessionRegistry) CloseSession(ctx context.Context, apiKey string, at time.Time) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cred, err := r.keys.Authorize(ctx, tx, apiKey)
	if err != nil {
		return nil, err
	}

	ids, err := r.sessions.CloseActive(ctx, tx, cred.APIKey, at)
	if err != nil {
		return nil, domain.ErrInternal("close sessions", err)
	}
	for _, id := range ids {
		if err := r.outbox.Insert(ctx, tx, domain.NewSessionClosedEvent(id, at)); err != nil {
			return nil, domain.ErrInternal("write outbox", err)
		}
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	infra.SessionsClosed.WithLabelValues("false").Add(float64(len(ids)))
	r.logger.Info("sessions closed", "steam_id", cred.SteamID, "count", len(ids))
	return ids, nil
}

// CloseSessionWithDemo stages demo on disk, then writes it into a blob and
// finalizes the session in one transaction. If anything fails the blob and the
// row change roll back together, so no row ever points at a missing blob. A demo
// already attached to the session is replaced and its blob unlinked.
func (r *SessionRegistry) CloseSessionWithDemo(ctx context.Context, apiKey, sessionID string, at time.Time, demo io.Reader) (*DemoReceipt, error) {
	// Refuse before reading the body; the write transaction checks again.
	err := r.readTx(ctx, apiKey, func(tx pgx.Tx, cred *domain.Credential) error {
		s, err := r.sessions.FindByID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s == nil || s.APIKey != cred.APIKey {
			return domain.ErrNotFound("session", sessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	spool, err := r.blobs.Stage(ctx, demo)
	if err != nil {
		r.logger.Warn("demo upload aborted", "session_id", sessionID, "error", err)
		return nil, err
	}
	defer spool.Close() //nolint:errcheck

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cred, err := r.keys.Authorize(ctx, tx, apiKey)
	if err != nil {
		return nil, err
	}

	s, err := r.sessions.LockOwned(ctx, tx, cred.APIKey, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("lookup session", err)
	}
	if s == nil {
		return nil, domain.ErrNotFound("session", sessionID)
	}

	oid, size, err := r.blobs.Write(ctx, tx, spool)
	if err != nil {
		r.logger.Warn("demo write failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	if err := r.sessions.FinalizeWithDemo(ctx, tx, cred.APIKey, sessionID, oid, at); err != nil {
		return nil, wrapInternal("finalize session", err)
	}
	if s.DemoOID != nil {
		los := tx.LargeObjects()
		if err := los.Unlink(ctx, *s.DemoOID); err != nil {
			return nil, domain.ErrInternal("unlink replaced demo", err)
		}
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewDemoAttachedEvent(sessionID, oid, size, at)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	infra.SessionsClosed.WithLabelValues("true").Inc()
	infra.DemoBytesStored.Add(float64(size))
	r.logger.Info("session closed with demo", "session_id", sessionID, "size_bytes", size)
	return &DemoReceipt{SessionID: sessionID, SizeBytes: size}, nil
}

// AttachLateBytes overwrites the trailer on the key's most recently touched
// session. Targeting is last-write-wins: a concurrent start or close for the same
// key can change which session that is.
func (r *SessionRegistry) AttachLateBytes(ctx context.Context, apiKey string, trailer []byte, at time.Time) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cred, err := r.keys.Authorize(ctx, tx, apiKey)
	if err != nil {
		return "", err
	}

	sessionID, err := r.sessions.PatchLateBytes(ctx, tx, cred.APIKey, trailer, at)
	if err != nil {
		return "", domain.ErrInternal("patch late bytes", err)
	}
	if sessionID == "" {
		return "", domain.ErrNotFound("session for api key", "")
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewLateBytesEvent(sessionID, len(trailer), at)); err != nil {
		return "", domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return "", err
	}

	infra.LateBytesPatched.Inc()
	r.logger.Info("late bytes attached", "session_id", sessionID, "size_bytes", len(trailer))
	return sessionID, nil
}

// GetLatestSessionID returns the key's session with the latest start time, or "" if it has none.
func (r *SessionRegistry) GetLatestSessionID(ctx context.Context, apiKey string) (string, error) {
	var latest string
	err := r.readTx(ctx, apiKey, func(tx pgx.Tx, cred *domain.Credential) error {
		id, err := r.sessions.LatestSessionID(ctx, tx, cred.APIKey)
		latest = id
		return err
	})
	return latest, err
}

// ListSessions returns the key's sessions, newest first.
func (r *SessionRegistry) ListSessions(ctx context.Context, apiKey string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.readTx(ctx, apiKey, func(tx pgx.Tx, cred *domain.Credential) error {
		list, err := r.sessions.ListByAPIKey(ctx, tx, cred.APIKey)
		sessions = list
		return err
	})
	return sessions, err
}

// ListSessionsFor returns an identity's sessions for moderation views.
func (r *SessionRegistry) ListSessionsFor(ctx context.Context, steamID string) ([]domain.Session, error) {
	cred, err := r.keys.Info(ctx, steamID)
	if err != nil {
		return nil, err
	}
	sessions, err := r.sessions.ListByAPIKey(ctx, r.pool, cred.APIKey)
	if err != nil {
		return nil, domain.ErrInternal("list sessions", err)
	}
	return sessions, nil
}

// OpenDemo streams a finalized session's demo followed by its late trailer, if any.
func (r *SessionRegistry) OpenDemo(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	s, err := r.sessions.FindByID(ctx, r.pool, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("lookup session", err)
	}
	if s == nil || !s.HasDemo() {
		return nil, domain.ErrNotFound("demo", sessionID)
	}

	blob, err := r.blobs.Open(ctx, *s.DemoOID)
	if err != nil {
		return nil, wrapInternal("open demo", err)
	}
	if len(s.LateBytes) == 0 {
		return blob, nil
	}
	return &demoReader{Reader: io.MultiReader(blob, bytes.NewReader(s.LateBytes)), closer: blob}, nil
}

func (r *SessionRegistry) readTx(ctx context.Context, apiKey string, fn func(pgx.Tx, *domain.Credential) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cred, err := r.keys.Authorize(ctx, tx, apiKey)
	if err != nil {
		return err
	}
	if err := fn(tx, cred); err != nil {
		return wrapInternal("read sessions", err)
	}
	if err := commit(ctx, tx); err != nil {
		return err
	}
	return nil
}

type demoReader struct {
	io.Reader
	closer io.Closer
}

func (d *demoReader) Close() error { return d.closer.Close() }
