package infra

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.APIPort)
	assert.Equal(t, "demos", cfg.PGDatabase)
	assert.Equal(t, 24*time.Hour, cfg.JWTPlayerExpiry)
	assert.Equal(t, int64(1<<30), cfg.DemoUploadMax)
	assert.False(t, cfg.EarlyAccessOnly)
	assert.Empty(t, cfg.RosterURL)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9001")
	t.Setenv("EARLY_ACCESS_ONLY", "true")
	t.Setenv("ROSTER_CACHE_TTL", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.APIPort)
	assert.True(t, cfg.EarlyAccessOnly)
	assert.Equal(t, 5*time.Minute, cfg.RosterCacheTTL)
}

func TestValidate_RejectsInsecureSecret(t *testing.T) {
	cfg := &Config{
		JWTSecret:         "change-me-in-production",
		DemoUploadMax:     1,
		LateBytesMax:      1,
		CaptureRateLimit:  1,
		CaptureRateWindow: time.Minute,
	}
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg.AllowInsecureDefaults = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RequiresPositiveLimits(t *testing.T) {
	cfg := &Config{JWTSecret: "0123456789abcdef0123456789abcdef", DemoUploadMax: 0, LateBytesMax: 1}
	assert.Error(t, cfg.Validate())

	cfg.DemoUploadMax = 10
	assert.Error(t, cfg.Validate(), "rate limit unset")

	cfg.CaptureRateLimit = 60
	cfg.CaptureRateWindow = time.Minute
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	cfg := &Config{PGUser: "u", PGPassword: "p", PGHost: "h", PGPort: 5432, PGDatabase: "demos"}
	assert.Equal(t, "postgres://u:p@h:5432/demos?sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.DSN())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
