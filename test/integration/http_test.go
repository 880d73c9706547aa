//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/handler"
	"github.com/masterbase/platform/internal/infra"
	"github.com/masterbase/platform/internal/repository"
	"github.com/masterbase/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _, _ []byte, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func newPoller(env *testutil.TestEnv, pub infra.EventPublisher, cfg *infra.Config) *infra.OutboxPoller {
	return infra.NewOutboxPoller(env.Pool, repository.NewOutboxRepository(), pub, cfg, testutil.Logger())
}

func TestHTTP_CaptureClientFlow(t *testing.T) {
	env := testutil.NewTestEnv(t)
	steamID := testutil.NewSteamID()
	player := testutil.BearerHeader(env.Token(auth.RealmPlayer, steamID, ""))

	resp := env.Request(http.MethodPost, "/keys", nil, player)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cred domain.Credential
	env.DecodeJSON(resp, &cred)
	require.Equal(t, steamID, cred.SteamID)
	key := testutil.KeyHeader(cred.APIKey)

	resp = env.Request(http.MethodPost, "/sessions", map[string]string{
		"session_id": "10001", "demo_name": "match.dem", "fake_ip": "169.254.3.3:27015", "map": "cp_gullywash",
	}, key)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.Request(http.MethodPost, "/sessions", map[string]string{"session_id": "10002", "demo_name": "b.dem"}, key)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.CodeSessionAlreadyActive, env.ErrorCode(resp))

	resp = env.Request(http.MethodPost, "/sessions/10001/demo", bytes.NewReader([]byte("HL2DEMO")), key)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.Request(http.MethodPost, "/sessions/late_bytes", map[string]string{"late_bytes": hex.EncodeToString([]byte("!!"))}, key)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.Request(http.MethodGet, "/sessions/latest?api_key="+cred.APIKey, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest map[string]string
	env.DecodeJSON(resp, &latest)
	assert.Equal(t, "10001", latest["session_id"])

	resp = env.Request(http.MethodGet, "/sessions", nil, key)
	var listed struct {
		Sessions []handler.SessionView `json:"sessions"`
	}
	env.DecodeJSON(resp, &listed)
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, "cp_gullywash", listed.Sessions[0].MapName)
	assert.True(t, listed.Sessions[0].HasDemo)

	reviewer := testutil.BearerHeader(env.Token(auth.RealmReviewer, testutil.NewSteamID(), ""))
	resp = env.Request(http.MethodGet, "/demos/10001", nil, reviewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "HL2DEMO!!", string(body))
}

func TestHTTP_AuthBoundaries(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, key := env.ProvisionKey()

	resp := env.Request(http.MethodPost, "/sessions/close", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.Request(http.MethodPost, "/sessions/close", nil, testutil.KeyHeader("not-a-key"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	env.StartSession(key, "10901")
	report := map[string]string{"session_id": "10901", "target_steam_id": testutil.NewSteamID(), "reason": "bot"}
	resp = env.Request(http.MethodPost, "/reports", report, testutil.KeyHeader("not-a-key"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
	var reports int
	require.NoError(t, env.Pool.QueryRow(t.Context(), `SELECT count(*) FROM reports`).Scan(&reports))
	assert.Zero(t, reports)

	// A player token is not a reviewer token.
	player := testutil.BearerHeader(env.Token(auth.RealmPlayer, testutil.NewSteamID(), ""))
	resp = env.Request(http.MethodGet, "/reviews/1", nil, player)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	analyst := testutil.BearerHeader(env.Token(auth.RealmAdmin, testutil.NewSteamID(), auth.RoleAnalyst))
	resp = env.Request(http.MethodGet, "/admin/export/reports", nil, analyst)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.Request(http.MethodPost, "/sessions/close", nil, testutil.KeyHeader(key))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_IngestReviewAndExport(t *testing.T) {
	env := testutil.NewTestEnv(t)
	closedSession(t, env, "11001")

	analyst := testutil.BearerHeader(env.Token(auth.RealmAdmin, testutil.NewSteamID(), auth.RoleAnalyst))
	headers := map[string]string{"Authorization": analyst["Authorization"], handler.IdempotencyKeyHeader: "b-1"}
	payload := map[string]interface{}{"detections": detections(2)}

	for i := 0; i < 2; i++ {
		resp := env.Request(http.MethodPost, "/ingest/11001", payload, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res domain.IngestResult
		env.DecodeJSON(resp, &res)
		assert.Equal(t, i == 1, res.Duplicate)
	}
	assert.Equal(t, int64(2), analysisCount(t, env, "11001", flaggedSteamID))

	reviewerID := testutil.NewSteamID()
	reviewer := testutil.BearerHeader(env.Token(auth.RealmReviewer, reviewerID, ""))
	resp := env.Request(http.MethodPost, "/reviews/11001/"+flaggedSteamID, map[string]string{"verdict": "confirm-cheater"}, reviewer)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var review domain.Review
	env.DecodeJSON(resp, &review)
	assert.Equal(t, reviewerID, review.ReviewerSteamID)

	resp = env.Request(http.MethodPost, "/reviews/11001/"+flaggedSteamID, map[string]string{"verdict": "reject"}, reviewer)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.CodeDuplicateReview, env.ErrorCode(resp))

	resp = env.Request(http.MethodGet, "/reviews/11001/"+flaggedSteamID+"/tally", nil, reviewer)
	var tally struct {
		Verdicts domain.Tally `json:"verdicts"`
		Total    int          `json:"total"`
	}
	env.DecodeJSON(resp, &tally)
	assert.Equal(t, 1, tally.Total)
	assert.Equal(t, 1, tally.Verdicts[domain.VerdictConfirmCheater])

	_, key := env.ProvisionKey()
	resp = env.Request(http.MethodPost, "/reports", map[string]string{
		"session_id": "11001", "target_steam_id": flaggedSteamID, "reason": "cheater",
	}, testutil.KeyHeader(key))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	admin := testutil.BearerHeader(env.Token(auth.RealmAdmin, testutil.NewSteamID(), auth.RoleAdmin))
	resp = env.Request(http.MethodGet, "/admin/export/demo_sessions", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	csv, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "api_key")
	assert.Contains(t, lines[1], "11001")

	resp = env.Request(http.MethodGet, "/admin/export/reports", nil, admin)
	csv, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(csv), "cheater")
}

func TestHTTP_AdminPlayerSessionsRedacted(t *testing.T) {
	env := testutil.NewTestEnv(t)
	steamID, key := env.ProvisionKey()
	env.StartSession(key, "12001")

	admin := testutil.BearerHeader(env.Token(auth.RealmAdmin, testutil.NewSteamID(), auth.RoleAnalyst))
	resp := env.Request(http.MethodGet, "/admin/players/"+steamID+"/sessions", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "12001")
	assert.NotContains(t, string(body), key)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.Request(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.Request(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "masterbase_http_requests_total")
}
