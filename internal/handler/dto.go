package handler

import (
	"time"

	"github.com/masterbase/platform/internal/domain"
)

// redactedKey replaces the api key in views shown to anyone but the owner.
const redactedKey = "0"

// SessionView is the wire shape of a demo session.
type SessionView struct {
	SessionID  string     `json:"session_id"`
	APIKey     string     `json:"api_key"`
	DemoName   string     `json:"demo_name"`
	Active     bool       `json:"active"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	FakeIP     string     `json:"fake_ip"`
	MapName    string     `json:"map_name"`
	DemoLength string     `json:"demo_length"`
	HasDemo    bool       `json:"has_demo"`
	Ingested   bool       `json:"ingested"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewSessionView builds a view of s. The api key is only carried for its owner.
func NewSessionView(s *domain.Session, owner bool) SessionView {
	key := redactedKey
	if owner {
		key = s.APIKey
	}
	return SessionView{
		SessionID:  s.SessionID,
		APIKey:     key,
		DemoName:   s.DemoName,
		Active:     s.Active,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		FakeIP:     s.FakeIP,
		MapName:    s.Map,
		DemoLength: domain.FormatDemoLength(s.Length()),
		HasDemo:    s.HasDemo(),
		Ingested:   s.Ingested,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// NewSessionViews maps a list of sessions.
func NewSessionViews(sessions []domain.Session, owner bool) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		out = append(out, NewSessionView(&sessions[i], owner))
	}
	return out
}
