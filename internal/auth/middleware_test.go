package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/masterbase/platform/internal/domain"
	"github.com/stretchr/testify/assert"
)

type staticResolver map[string]string

func (s staticResolver) Resolve(_ context.Context, key string) (string, error) {
	if id, ok := s[key]; ok {
		return id, nil
	}
	return "", domain.ErrNotFound("api key", "")
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func captureHandler(seen *http.Request) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = *r
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAPIKey_HeaderAndQuery(t *testing.T) {
	var seen http.Request
	h := RequireAPIKey(nil)(captureHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set(APIKeyHeader, "k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "k1", APIKeyFromContext(seen.Context()))

	req = httptest.NewRequest(http.MethodGet, "/sessions?api_key=k2", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "k2", APIKeyFromContext(seen.Context()))
}

func TestRequireAPIKey_Missing(t *testing.T) {
	var seen http.Request
	rec := httptest.NewRecorder()
	RequireAPIKey(nil)(captureHandler(&seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAPIKey_Resolves(t *testing.T) {
	var seen http.Request
	h := RequireAPIKey(staticResolver{"k1": testSteamID})(captureHandler(&seen))

	req := httptest.NewRequest(http.MethodPost, "/reports", nil)
	req.Header.Set(APIKeyHeader, "k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testSteamID, SubjectFromContext(seen.Context()))

	req = httptest.NewRequest(http.MethodPost, "/reports", nil)
	req.Header.Set(APIKeyHeader, "stale")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAPIKey_LookupFailureIsNotUnauthorized(t *testing.T) {
	var seen http.Request
	h := RequireAPIKey(failingResolver{})(captureHandler(&seen))

	req := httptest.NewRequest(http.MethodPost, "/reports", nil)
	req.Header.Set(APIKeyHeader, "k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthenticateRealmAndRole(t *testing.T) {
	mgr := newTestJWTManager()
	analyst, _ := mgr.GenerateToken(RealmAdmin, testSteamID, RoleAnalyst)
	reviewer, _ := mgr.GenerateToken(RealmReviewer, testSteamID, "")

	var seen http.Request
	h := AuthenticateAdmin(mgr)(RequireRole(RoleAdmin)(captureHandler(&seen)))

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong realm", reviewer, http.StatusUnauthorized},
		{"insufficient role", analyst, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/export/reports", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	admin, _ := mgr.GenerateToken(RealmAdmin, testSteamID, RoleAdmin)
	req := httptest.NewRequest(http.MethodGet, "/admin/export/reports", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testSteamID, SubjectFromContext(seen.Context()))
}
