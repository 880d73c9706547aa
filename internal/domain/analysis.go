package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Detection is one detector firing at a capture tick for an in-capture player.
// It is folded into an AnalysisRecord and never stored verbatim.
type Detection struct {
	Tick      int64           `json:"tick"`
	Algorithm string          `json:"algorithm"`
	Player    int64           `json:"player"`
	Data      json.RawMessage `json:"data"`
}

// Validate checks a single detection.
func (d Detection) Validate() error {
	if d.Tick < 0 {
		return fmt.Errorf("tick must be non-negative, got %d", d.Tick)
	}
	if d.Algorithm == "" {
		return fmt.Errorf("algorithm is required")
	}
	if d.Player <= 0 {
		return fmt.Errorf("player must be positive, got %d", d.Player)
	}
	if trimmed := bytes.TrimSpace(d.Data); len(trimmed) > 0 && trimmed[0] != '{' && !bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("data must be a JSON object")
	}
	return nil
}

// AnalysisRecord aggregates detections for one (session, flagged player) pair.
type AnalysisRecord struct {
	SessionID      string    `db:"session_id" json:"session_id"`
	TargetSteamID  string    `db:"target_steam_id" json:"target_steam_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	DetectionCount int64     `db:"detection_count" json:"detection_count"`
}

// IngestParams is one batch submitted by an analysis client.
// BatchID is optional; when set, a replay of the same batch is a no-op.
type IngestParams struct {
	SessionID  string
	BatchID    string
	Detections []Detection
}

// IngestResult summarises what an ingest call applied.
type IngestResult struct {
	SessionID  string `json:"session_id"`
	Records    int    `json:"records"`
	Detections int    `json:"detections"`
	Duplicate  bool   `json:"duplicate"`
}
