package domain

import (
	"fmt"
	"time"
)

// Session is one capture-session lifecycle instance (a row of demo_sessions).
// Invariants enforced by the schema: at most one active row per api key,
// EndTime is set iff Active is false, DemoOID only set by a close with a demo.
type Session struct {
	SessionID    string     `db:"session_id"`
	APIKey       string     `db:"api_key"`
	DemoName     string     `db:"demo_name"`
	Active       bool       `db:"active"`
	StartTime    time.Time  `db:"start_time"`
	EndTime      *time.Time `db:"end_time"`
	FakeIP       string     `db:"fake_ip"`
	Map          string     `db:"map"`
	SteamAPIData *string    `db:"steam_api_data"`
	Ingested     bool       `db:"ingested"`
	DemoOID      *uint32    `db:"demo_oid"`
	LateBytes    []byte     `db:"late_bytes"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// StartSessionParams carries the client-supplied fields of a new session.
type StartSessionParams struct {
	SessionID string `json:"session_id"`
	DemoName  string `json:"demo_name"`
	FakeIP    string `json:"fake_ip"`
	Map       string `json:"map"`
}

// Validate checks the client-supplied fields.
func (p StartSessionParams) Validate() error {
	if err := ValidateSessionID(p.SessionID); err != nil {
		return err
	}
	if p.DemoName == "" {
		return fmt.Errorf("demo_name is required")
	}
	if len(p.DemoName) > 255 || len(p.Map) > 255 || len(p.FakeIP) > 64 {
		return fmt.Errorf("session field too long")
	}
	return nil
}

// Closed reports whether the session has left the active state.
func (s *Session) Closed() bool { return !s.Active }

// HasDemo reports whether a demo blob was attached at close.
func (s *Session) HasDemo() bool { return s.DemoOID != nil }

// Length returns the recorded span of the session; zero while still active.
func (s *Session) Length() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// FormatDemoLength renders a duration as HH:MM:SS, ignoring whole days.
func FormatDemoLength(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d/time.Second) % 86400
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
