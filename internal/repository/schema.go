package repository

import "strings"

// Column lists mirror the db tags of the row structs. They are the only columns
// repositories select, and Schema exposes them so startup can verify the database.
var (
	credentialColumns = []string{"steam_id", "api_key", "created_at", "updated_at"}
	sessionColumns    = []string{
		"session_id", "api_key", "demo_name", "active", "start_time", "end_time",
		"fake_ip", "map", "steam_api_data", "ingested", "demo_oid", "late_bytes",
		"created_at", "updated_at",
	}
	analysisColumns = []string{"session_id", "target_steam_id", "created_at", "detection_count"}
	reviewColumns   = []string{"session_id", "target_steam_id", "reviewer_steam_id", "created_at", "verdict"}
	reportColumns   = []string{"id", "session_id", "target_steam_id", "reason", "created_at"}
	outboxColumns   = []string{
		"id", "eventId", "aggregateType", "aggregateId", "eventType",
		"partitionKey", "headers", "payload", "occurredAt", "publishedAt",
	}
)

// Schema returns every table the repositories touch with the columns they rely on.
func Schema() map[string][]string {
	return map[string][]string{
		"api_keys":              credentialColumns,
		"beta_tester_steam_ids": {"steam_id"},
		"demo_sessions":         sessionColumns,
		"analysis":              analysisColumns,
		"reviews":               reviewColumns,
		"reports":               reportColumns,
		"ingest_batches":        {"session_id", "batch_id", "created_at"},
		"event_outbox":          outboxColumns,
	}
}

func selectList(cols []string) string {
	return strings.Join(cols, ", ")
}
