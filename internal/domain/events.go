package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID, partition string, evt EventType, payload interface{}, at time.Time) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partition,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}

// NewSessionStartedEvent records a session entering the active state.
func NewSessionStartedEvent(s *Session) OutboxDraft {
	return newDraft(AggregateSession, s.SessionID, s.SessionID, EventSessionStarted, map[string]interface{}{
		"session_id": s.SessionID,
		"demo_name":  s.DemoName,
		"map":        s.Map,
		"start_time": s.StartTime,
	}, s.CreatedAt)
}

// NewSessionClosedEvent records a plain close (no demo attached).
func NewSessionClosedEvent(sessionID string, at time.Time) OutboxDraft {
	return newDraft(AggregateSession, sessionID, sessionID, EventSessionClosed, map[string]interface{}{
		"session_id": sessionID,
		"end_time":   at,
	}, at)
}

// NewDemoAttachedEvent records a close that finalized the session with a demo blob.
func NewDemoAttachedEvent(sessionID string, oid uint32, size int64, at time.Time) OutboxDraft {
	return newDraft(AggregateSession, sessionID, sessionID, EventSessionDemoAttached, map[string]interface{}{
		"session_id": sessionID,
		"demo_oid":   oid,
		"size_bytes": size,
		"end_time":   at,
	}, at)
}

// NewLateBytesEvent records a trailer patch landing on a session.
func NewLateBytesEvent(sessionID string, size int, at time.Time) OutboxDraft {
	return newDraft(AggregateSession, sessionID, sessionID, EventSessionLateBytes, map[string]interface{}{
		"session_id": sessionID,
		"size_bytes": size,
	}, at)
}

// NewAnalysisIngestedEvent records an applied detection batch.
func NewAnalysisIngestedEvent(res IngestResult, batchID string, at time.Time) OutboxDraft {
	return newDraft(AggregateAnalysis, res.SessionID, res.SessionID, EventAnalysisIngested, map[string]interface{}{
		"session_id": res.SessionID,
		"batch_id":   batchID,
		"records":    res.Records,
		"detections": res.Detections,
	}, at)
}

// NewReviewSubmittedEvent records a reviewer verdict.
func NewReviewSubmittedEvent(r *Review) OutboxDraft {
	return newDraft(AggregateAnalysis, r.SessionID+"/"+r.TargetSteamID, r.SessionID, EventReviewSubmitted, r, r.CreatedAt)
}

// NewReportSubmittedEvent records an end-user report.
func NewReportSubmittedEvent(r *Report) OutboxDraft {
	return newDraft(AggregateReport, r.SessionID, r.SessionID, EventReportSubmitted, r, r.CreatedAt)
}

// NewAPIKeyEvent records a provisioning or rotation. The secret itself is never emitted.
func NewAPIKeyEvent(evt EventType, steamID string, at time.Time) OutboxDraft {
	return newDraft(AggregateAPIKey, steamID, steamID, evt, map[string]string{
		"steam_id": steamID,
	}, at)
}
