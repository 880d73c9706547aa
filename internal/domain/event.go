package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventSessionStarted      EventType = "masterbase.session.started"
	EventSessionClosed       EventType = "masterbase.session.closed"
	EventSessionDemoAttached EventType = "masterbase.session.demo_attached"
	EventSessionLateBytes    EventType = "masterbase.session.late_bytes"
	EventAnalysisIngested    EventType = "masterbase.analysis.ingested"
	EventReviewSubmitted     EventType = "masterbase.review.submitted"
	EventReportSubmitted     EventType = "masterbase.report.submitted"
	EventAPIKeyProvisioned   EventType = "masterbase.apikey.provisioned"
	EventAPIKeyRotated       EventType = "masterbase.apikey.rotated"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateSession  AggregateType = "session"
	AggregateAnalysis AggregateType = "analysis"
	AggregateReport   AggregateType = "report"
	AggregateAPIKey   AggregateType = "apikey"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an outbox entry as read back by the publisher.
type OutboxRow struct {
	SeqID int64
	OutboxDraft
}
