//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table and drops orphaned demo blobs.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx, `
		TRUNCATE reviews, analysis, ingest_batches, reports, demo_sessions,
		         api_keys, beta_tester_steam_ids, event_outbox CASCADE`)
	if err != nil {
		env.t.Fatalf("CleanAll: truncate: %v", err)
	}
	if _, err := env.Pool.Exec(ctx, `SELECT lo_unlink(oid) FROM pg_largeobject_metadata`); err != nil {
		env.t.Fatalf("CleanAll: unlink blobs: %v", err)
	}
}
