//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/app"
	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/infra"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	TestJWTSecret = "integration-test-secret-0123456789abcdef"
	TestDBUser    = "masterbase"
	TestDBPass    = "masterbase"
	TestDBName    = "demos_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	JWTMgr   *auth.JWTManager
	Config   *infra.Config
	Services *app.Services
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

// startPostgres runs a disposable Postgres and applies the embedded migrations.
// The container lives for the whole test binary.
func startPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase(TestDBName),
		postgres.WithUsername(TestDBUser),
		postgres.WithPassword(TestDBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}
	if err := infra.RunMigrations(dsn, Logger()); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		sharedPool, poolErr = startPostgres()
	})
	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// TestConfig returns the configuration used by every test environment.
func TestConfig() *infra.Config {
	return &infra.Config{
		JWTSecret:             TestJWTSecret,
		JWTPlayerExpiry:       time.Hour,
		JWTReviewerExpiry:     time.Hour,
		JWTAdminExpiry:        time.Hour,
		DemoUploadMax:         1 << 20,
		DemoUploadWindow:      time.Minute,
		LateBytesMax:          1024,
		CaptureRateLimit:      1000,
		CaptureRateWindow:     time.Minute,
		RosterCacheLen:        128,
		RosterCacheTTL:        time.Minute,
		UpstreamFailThreshold: 5,
		UpstreamResetTimeout:  time.Second,
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by the real router and a test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	cfg := TestConfig()
	logger := Logger()
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTReviewerExpiry, cfg.JWTAdminExpiry)

	router := app.NewRouter(app.RouterDeps{
		Pool:   pool,
		JWTMgr: jwtMgr,
		Config: cfg,
		Logger: logger,
	})
	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:   server,
		Pool:     pool,
		JWTMgr:   jwtMgr,
		Config:   cfg,
		Services: app.NewServices(pool, cfg, logger),
		t:        t,
	}

	t.Cleanup(func() {
		server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}

// Logger discards output; failures surface through returned errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
