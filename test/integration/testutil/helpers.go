//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
)

var steamSeq atomic.Int64

// NewSteamID returns a fresh individual-account SteamID64.
func NewSteamID() string {
	id, _ := domain.SteamID64FromPlayer(100000 + steamSeq.Add(1))
	return id
}

// ProvisionKey provisions an API key for a new identity and returns both.
func (env *TestEnv) ProvisionKey() (steamID, apiKey string) {
	env.t.Helper()
	steamID = NewSteamID()
	cred, err := env.Services.Keys.Provision(context.Background(), steamID)
	if err != nil {
		env.t.Fatalf("ProvisionKey: %v", err)
	}
	return steamID, cred.APIKey
}

// StartSession opens a session and fails the test on error.
func (env *TestEnv) StartSession(apiKey, sessionID string) *domain.Session {
	env.t.Helper()
	s, err := env.Services.Sessions.StartSession(context.Background(), apiKey, domain.StartSessionParams{
		SessionID: sessionID,
		DemoName:  sessionID + ".dem",
		FakeIP:    "169.254.10.1:27015",
		Map:       "pl_upward",
	})
	if err != nil {
		env.t.Fatalf("StartSession %s: %v", sessionID, err)
	}
	return s
}

// CloseWithDemo finalizes a session with the given demo bytes.
func (env *TestEnv) CloseWithDemo(apiKey, sessionID string, demo []byte) {
	env.t.Helper()
	_, err := env.Services.Sessions.CloseSessionWithDemo(context.Background(), apiKey, sessionID, time.Now().UTC(), bytes.NewReader(demo))
	if err != nil {
		env.t.Fatalf("CloseWithDemo %s: %v", sessionID, err)
	}
}

// Token mints a JWT for the given realm.
func (env *TestEnv) Token(realm auth.Realm, steamID, role string) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(realm, steamID, role)
	if err != nil {
		env.t.Fatalf("Token: %v", err)
	}
	return token
}

// Request performs an HTTP request against the test server. A non-nil body that
// is not an io.Reader is JSON encoded.
func (env *TestEnv) Request(method, path string, body interface{}, headers map[string]string) *http.Response {
	env.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rdr = b
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
		rdr = &buf
	}

	req, err := http.NewRequest(method, env.Server.URL+path, rdr)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// KeyHeader builds the API key header set.
func KeyHeader(apiKey string) map[string]string {
	return map[string]string{auth.APIKeyHeader: apiKey}
}

// BearerHeader builds an Authorization header set.
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// DecodeJSON reads and decodes a JSON response body into dst.
func (env *TestEnv) DecodeJSON(resp *http.Response, dst interface{}) {
	env.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		env.t.Fatalf("DecodeJSON: %v", err)
	}
}

// ErrorCode decodes an error response and returns its code.
func (env *TestEnv) ErrorCode(resp *http.Response) string {
	env.t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	env.DecodeJSON(resp, &body)
	return body.Code
}

// CountOutboxEvents returns the number of outbox events of a type for an aggregate.
func (env *TestEnv) CountOutboxEvents(aggregateID string, evt domain.EventType) int {
	env.t.Helper()
	var n int
	err := env.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM event_outbox WHERE "aggregateId" = $1 AND "eventType" = $2`,
		aggregateID, string(evt)).Scan(&n)
	if err != nil {
		env.t.Fatalf("CountOutboxEvents: %v", err)
	}
	return n
}

// CountBlobs returns the number of large objects in the database.
func (env *TestEnv) CountBlobs() int {
	env.t.Helper()
	var n int
	if err := env.Pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM pg_largeobject_metadata`).Scan(&n); err != nil {
		env.t.Fatalf("CountBlobs: %v", err)
	}
	return n
}

// SessionID returns a unique session id for a test.
func SessionID(n int) string {
	return fmt.Sprintf("%d%06d", time.Now().UnixNano()%1e9, n)
}
