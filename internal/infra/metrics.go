package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters. HTTP metrics live with the router middleware.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_sessions_started_total",
		Help: "Capture sessions opened.",
	})
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "masterbase_sessions_closed_total",
		Help: "Capture sessions closed, by whether a demo blob was attached.",
	}, []string{"with_demo"})
	DemoBytesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_demo_bytes_stored_total",
		Help: "Bytes written to demo blobs.",
	})
	LateBytesPatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_late_bytes_patched_total",
		Help: "Late trailer patches applied.",
	})
	DetectionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_detections_ingested_total",
		Help: "Detection events folded into analysis records.",
	})
	IngestReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_ingest_replays_total",
		Help: "Ingest batches skipped because their batch id was already applied.",
	})
	ReviewsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "masterbase_reviews_submitted_total",
		Help: "Reviewer verdicts recorded, by verdict.",
	}, []string{"verdict"})
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_outbox_published_total",
		Help: "Outbox events delivered to the broker.",
	})
	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_outbox_publish_failures_total",
		Help: "Outbox publish attempts rejected by the broker.",
	})
	RosterCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_roster_cache_hits_total",
		Help: "Roster lookups served from the LRU cache.",
	})
	RosterCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masterbase_roster_cache_misses_total",
		Help: "Roster lookups that went to the roster service.",
	})
)
