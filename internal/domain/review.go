package domain

import (
	"fmt"
	"time"
)

// Verdict is a reviewer's judgment on a flagged player.
type Verdict string

const (
	VerdictConfirmCheater Verdict = "confirm-cheater"
	VerdictConfirmBot     Verdict = "confirm-bot"
	VerdictReject         Verdict = "reject"
)

// ParseVerdict validates a verdict string.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(s); v {
	case VerdictConfirmCheater, VerdictConfirmBot, VerdictReject:
		return v, nil
	}
	return "", fmt.Errorf("invalid verdict: %q", s)
}

// Review is one reviewer's verdict on a (session, target) subject.
type Review struct {
	SessionID       string    `db:"session_id" json:"session_id"`
	TargetSteamID   string    `db:"target_steam_id" json:"target_steam_id"`
	ReviewerSteamID string    `db:"reviewer_steam_id" json:"reviewer_steam_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	Verdict         Verdict   `db:"verdict" json:"verdict"`
}

// Tally maps each verdict to the number of reviewers who chose it.
type Tally map[Verdict]int

// Total returns the number of verdicts counted.
func (t Tally) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}
