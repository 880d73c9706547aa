package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/infra"
	"github.com/masterbase/platform/internal/repository"
)

// RosterResolver maps an in-capture player id to a SteamID64.
type RosterResolver interface {
	Resolve(ctx context.Context, sessionID string, player int64) (string, error)
}

// IngestionPipeline folds analysis-client detections into per-player counters.
type IngestionPipeline struct {
	pool     *pgxpool.Pool
	sessions repository.SessionRepository
	analysis repository.AnalysisRepository
	outbox   repository.OutboxRepository
	roster   RosterResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestionPipeline creates an IngestionPipeline.
func NewIngestionPipeline(
	pool *pgxpool.Pool,
	sessions repository.SessionRepository,
	analysis repository.AnalysisRepository,
	outbox repository.OutboxRepository,
	roster RosterResolver,
	logger *slog.Logger,
) *IngestionPipeline {
	return &IngestionPipeline{
		pool:     pool,
		sessions: sessions,
		analysis: analysis,
		outbox:   outbox,
		roster:   roster,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ingest applies one batch of detections to a closed session in a single
// transaction. Without a batch id a resubmitted batch counts again. With one, the
// second submission is skipped and reported as a duplicate.
func (p *IngestionPipeline) Ingest(ctx context.Context, params domain.IngestParams) (*domain.IngestResult, error) {
	for i, d := range params.Detections {
		if err := d.Validate(); err != nil {
			return nil, domain.ErrValidation(fmt.Sprintf("detection %d: %v", i, err))
		}
	}

	// Roster lookups may call out over the network, so they happen before the tx opens.
	counts, err := p.countByTarget(ctx, params.SessionID, params.Detections)
	if err != nil {
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	s, err := p.sessions.FindByID(ctx, tx, params.SessionID)
	if err != nil {
		return nil, domain.ErrInternal("lookup session", err)
	}
	if s == nil {
		return nil, domain.ErrNotFound("session", params.SessionID)
	}
	if !s.Closed() {
		return nil, domain.ErrSessionActive(params.SessionID)
	}

	res := &domain.IngestResult{SessionID: params.SessionID}
	now := p.now()

	if params.BatchID != "" {
		fresh, err := p.analysis.RecordBatch(ctx, tx, params.SessionID, params.BatchID, now)
		if err != nil {
			return nil, domain.ErrInternal("record batch", err)
		}
		if !fresh {
			infra.IngestReplays.Inc()
			p.logger.Info("ingest batch replay skipped", "session_id", params.SessionID, "batch_id", params.BatchID)
			res.Duplicate = true
			return res, nil
		}
	}

	for _, target := range sortedTargets(counts) {
		if err := p.analysis.AddDetections(ctx, tx, params.SessionID, target, counts[target], now); err != nil {
			return nil, domain.ErrInternal("apply detections", err)
		}
	}
	if err := p.sessions.MarkIngested(ctx, tx, params.SessionID); err != nil {
		return nil, domain.ErrInternal("mark ingested", err)
	}

	res.Records = len(counts)
	res.Detections = len(params.Detections)
	if err := p.outbox.Insert(ctx, tx, domain.NewAnalysisIngestedEvent(*res, params.BatchID, now)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	infra.DetectionsIngested.Add(float64(res.Detections))
	p.logger.Info("detections ingested",
		"session_id", params.SessionID,
		"batch_id", params.BatchID,
		"records", res.Records,
		"detections", res.Detections,
	)
	return res, nil
}

// countByTarget resolves each detection's player and counts detections per SteamID.
func (p *IngestionPipeline) countByTarget(ctx context.Context, sessionID string, detections []domain.Detection) (map[string]int64, error) {
	counts := make(map[string]int64)
	resolved := make(map[int64]string)
	for _, d := range detections {
		target, ok := resolved[d.Player]
		if !ok {
			var err error
			target, err = p.roster.Resolve(ctx, sessionID, d.Player)
			if errors.Is(err, domain.ErrUnresolvablePlayer) {
				return nil, domain.ErrValidation(err.Error())
			}
			if err != nil {
				return nil, domain.ErrInternal(fmt.Sprintf("resolve player %d", d.Player), err)
			}
			resolved[d.Player] = target
		}
		counts[target]++
	}
	return counts, nil
}

// sortedTargets gives concurrent batches a common lock order on analysis rows.
func sortedTargets(counts map[string]int64) []string {
	targets := make([]string, 0, len(counts))
	for t := range counts {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}
