package domain

import (
	"fmt"
	"time"
)

// ReportReason enumerates why an end user reported a player.
type ReportReason string

const (
	ReportBot     ReportReason = "bot"
	ReportCheater ReportReason = "cheater"
)

// ParseReportReason validates a report reason.
func ParseReportReason(s string) (ReportReason, error) {
	switch r := ReportReason(s); r {
	case ReportBot, ReportCheater:
		return r, nil
	}
	return "", fmt.Errorf("invalid report reason: %q", s)
}

// Report is an end-user complaint against a player seen in a session.
type Report struct {
	ID            int64        `db:"id" json:"id"`
	SessionID     string       `db:"session_id" json:"session_id"`
	TargetSteamID string       `db:"target_steam_id" json:"target_steam_id"`
	Reason        ReportReason `db:"reason" json:"reason"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// ExportTable is a table that may be dumped through the export surface.
type ExportTable string

const (
	ExportDemoSessions ExportTable = "demo_sessions"
	ExportReports      ExportTable = "reports"
)

// ParseExportTable accepts only the whitelisted table names.
func ParseExportTable(s string) (ExportTable, error) {
	switch t := ExportTable(s); t {
	case ExportDemoSessions, ExportReports:
		return t, nil
	}
	return "", fmt.Errorf("table %q is not exportable", s)
}
