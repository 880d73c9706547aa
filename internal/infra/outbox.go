package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/repository"
)

// EventPublisher delivers one outbox event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// OutboxPoller drains event_outbox to the broker. Rows are claimed with
// SKIP LOCKED so several pollers can run side by side.
type OutboxPoller struct {
	pool      *pgxpool.Pool
	repo      repository.OutboxRepository
	publisher EventPublisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	prefix    string
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, repo repository.OutboxRepository, publisher EventPublisher, cfg *Config, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		pool:      pool,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		interval:  cfg.OutboxPollInterval,
		batchSize: cfg.OutboxBatchSize,
		prefix:    cfg.KafkaTopic,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			n, err := p.Poll(ctx)
			if err != nil {
				p.logger.Error("outbox poll error", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox poll complete", "published", n)
			}
		}
	}
}

// Poll publishes one batch and returns how many events were delivered. Events are
// marked published only after the broker accepted them; a failure stops the batch
// so ordering per partition key is kept.
func (p *OutboxPoller) Poll(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := p.repo.ClaimUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		if err := p.publisher.Publish(ctx, TopicFor(p.prefix, row.AggregateType), []byte(row.PartitionKey), EncodeEvent(row), eventHeaders(row)); err != nil {
			p.logger.Error("kafka publish failed", "event_id", row.EventID, "error", err)
			OutboxPublishFailures.Inc()
			break
		}
		published = append(published, row.SeqID)
	}

	if err := p.repo.MarkPublished(ctx, tx, published, time.Now().UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	OutboxPublished.Add(float64(len(published)))
	return len(published), nil
}

// TopicFor maps an aggregate to its topic, e.g. masterbase.session.
func TopicFor(prefix string, agg domain.AggregateType) string {
	return prefix + "." + string(agg)
}

// EncodeEvent renders the broker message body for an outbox row.
func EncodeEvent(row domain.OutboxRow) []byte {
	msg, _ := json.Marshal(map[string]interface{}{
		"event_id":       row.EventID,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"event_type":     row.EventType,
		"payload":        row.Payload,
		"occurred_at":    row.OccurredAt,
	})
	return msg
}

func eventHeaders(row domain.OutboxRow) map[string]string {
	headers := map[string]string{}
	_ = json.Unmarshal(row.Headers, &headers)
	headers["event_type"] = string(row.EventType)
	headers["event_id"] = row.EventID.String()
	return headers
}
