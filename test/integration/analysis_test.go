//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/masterbase/platform/internal/app"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/infra"
	"github.com/masterbase/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	flaggedAccount = 22202
	flaggedSteamID = "76561197960287930"
)

func appServices(env *testutil.TestEnv, cfg *infra.Config) *app.Services {
	return app.NewServices(env.Pool, cfg, testutil.Logger())
}

func detections(n int) []domain.Detection {
	out := make([]domain.Detection, n)
	for i := range out {
		out[i] = domain.Detection{
			Tick:      int64(100 + i),
			Algorithm: "aimsnap",
			Player:    flaggedAccount,
			Data:      json.RawMessage(`{"angle":12.5}`),
		}
	}
	return out
}

// closedSession returns a finalized session ready for ingest.
func closedSession(t *testing.T, env *testutil.TestEnv, sessionID string) {
	t.Helper()
	_, key := env.ProvisionKey()
	env.StartSession(key, sessionID)
	env.CloseWithDemo(key, sessionID, []byte("demo"))
}

func analysisCount(t *testing.T, env *testutil.TestEnv, sessionID, target string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.Pool.QueryRow(t.Context(),
		`SELECT detection_count FROM analysis WHERE session_id = $1 AND target_steam_id = $2`,
		sessionID, target).Scan(&n))
	return n
}

func TestIngest_FoldsDetectionsPerPlayer(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "8001")

	batch := append(detections(3), domain.Detection{Tick: 5, Algorithm: "bhop", Player: 76561197960265729})
	res, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "8001", Detections: batch})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 4, res.Detections)
	assert.False(t, res.Duplicate)

	assert.Equal(t, int64(3), analysisCount(t, env, "8001", flaggedSteamID))
	assert.Equal(t, int64(1), analysisCount(t, env, "8001", "76561197960265729"))

	var ingested bool
	require.NoError(t, env.Pool.QueryRow(t.Context(), `SELECT ingested FROM demo_sessions WHERE session_id = '8001'`).Scan(&ingested))
	assert.True(t, ingested)

	recs, err := env.Services.Reviews.ListAnalysis(t.Context(), "8001")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, flaggedSteamID, recs[0].TargetSteamID)
}

func TestIngest_ResubmissionWithoutBatchIDCountsTwice(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "8101")

	for i := 0; i < 2; i++ {
		_, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "8101", Detections: detections(3)})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(6), analysisCount(t, env, "8101", flaggedSteamID))
}

func TestIngest_BatchIDDeduplicates(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "8201")

	params := domain.IngestParams{SessionID: "8201", BatchID: "run-1", Detections: detections(3)}
	first, err := env.Services.Ingest.Ingest(t.Context(), params)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := env.Services.Ingest.Ingest(t.Context(), params)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, int64(3), analysisCount(t, env, "8201", flaggedSteamID))
	assert.Equal(t, 1, env.CountOutboxEvents("8201", domain.EventAnalysisIngested))
}

func TestIngest_Preconditions(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, key := env.ProvisionKey()
	env.StartSession(key, "8301")

	_, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "8301", Detections: detections(1)})
	assert.True(t, domain.HasCode(err, domain.CodeSessionActive))

	_, err = env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "missing", Detections: detections(1)})
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))

	bad := detections(1)
	bad[0].Player = 1 << 40
	_, err = env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "8301", Detections: bad})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestIngest_EmptyBatchMarksIngested(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "8401")

	res, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "8401"})
	require.NoError(t, err)
	assert.Zero(t, res.Records)

	var ingested bool
	require.NoError(t, env.Pool.QueryRow(t.Context(), `SELECT ingested FROM demo_sessions WHERE session_id = '8401'`).Scan(&ingested))
	assert.True(t, ingested)
}

func TestReview_TallyAndDuplicates(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "9001")
	_, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{SessionID: "9001", Detections: detections(2)})
	require.NoError(t, err)

	r1, r2, r3 := testutil.NewSteamID(), testutil.NewSteamID(), testutil.NewSteamID()
	submit := func(reviewer string, v domain.Verdict) error {
		_, err := env.Services.Reviews.SubmitVerdict(t.Context(), "9001", flaggedSteamID, reviewer, v)
		return err
	}
	require.NoError(t, submit(r1, domain.VerdictConfirmCheater))
	require.NoError(t, submit(r2, domain.VerdictConfirmCheater))
	require.NoError(t, submit(r3, domain.VerdictReject))

	before, err := env.Services.Reviews.Tally(t.Context(), "9001", flaggedSteamID)
	require.NoError(t, err)
	assert.Equal(t, domain.Tally{domain.VerdictConfirmCheater: 2, domain.VerdictReject: 1}, before)

	err = submit(r1, domain.VerdictReject)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeDuplicateReview))

	after, err := env.Services.Reviews.Tally(t.Context(), "9001", flaggedSteamID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReview_UnknownSubject(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "9101")

	_, err := env.Services.Reviews.SubmitVerdict(t.Context(), "9101", flaggedSteamID, testutil.NewSteamID(), domain.VerdictConfirmBot)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeUnknownSubject))

	tally, err := env.Services.Reviews.Tally(t.Context(), "9101", flaggedSteamID)
	require.NoError(t, err)
	assert.Zero(t, tally.Total())
}

func TestOutboxPoller_PublishesAndMarks(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "9201")

	pub := &recordingPublisher{}
	cfg := testutil.TestConfig()
	cfg.OutboxBatchSize = 100
	cfg.OutboxPollInterval = time.Second
	cfg.KafkaTopic = "masterbase"
	poller := newPoller(env, pub, cfg)

	n, err := poller.Poll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, len(pub.topics), n)
	assert.Positive(t, n)
	assert.Contains(t, pub.topics, "masterbase.session")

	again, err := poller.Poll(t.Context())
	require.NoError(t, err)
	assert.Zero(t, again)
}

const otherSteamID = "76561197960265729"

// mixedBatch flags two players, listed in an order that depends on reversed.
func mixedBatch(reversed bool) []domain.Detection {
	batch := append(detections(3),
		domain.Detection{Tick: 7, Algorithm: "bhop", Player: 76561197960265729},
		domain.Detection{Tick: 8, Algorithm: "bhop", Player: 76561197960265729},
	)
	if reversed {
		slices.Reverse(batch)
	}
	return batch
}

func TestIngest_ConcurrentBatchesAllApply(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "8601")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{
				SessionID:  "8601",
				Detections: mixedBatch(i%2 == 1),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(workers*3), analysisCount(t, env, "8601", flaggedSteamID))
	assert.Equal(t, int64(workers*2), analysisCount(t, env, "8601", otherSteamID))
}

func TestIngest_ConcurrentReplaysApplyOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "8701")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		failed  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.Services.Ingest.Ingest(t.Context(), domain.IngestParams{
				SessionID:  "8701",
				BatchID:    "replayed-batch",
				Detections: mixedBatch(i%2 == 1),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, fmt.Errorf("worker %d: %w", i, err))
				return
			}
			if !res.Duplicate {
				applied++
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, failed)
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(3), analysisCount(t, env, "8701", flaggedSteamID))
	assert.Equal(t, int64(2), analysisCount(t, env, "8701", otherSteamID))
}
