package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/blobstore"
	"github.com/masterbase/platform/internal/guard"
	"github.com/masterbase/platform/internal/handler"
	adminhandler "github.com/masterbase/platform/internal/handler/admin"
	"github.com/masterbase/platform/internal/infra"
	"github.com/masterbase/platform/internal/provider"
	"github.com/masterbase/platform/internal/repository"
	"github.com/masterbase/platform/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Config *infra.Config
	Logger *slog.Logger
	// CORSOrigin defaults to "*".
	CORSOrigin string
}

// Services are the domain components behind the router, exposed so commands and
// integration tests share one construction path.
type Services struct {
	Keys     *service.APIKeyAuthority
	Sessions *service.SessionRegistry
	Ingest   *service.IngestionPipeline
	Reviews  *service.ReviewConsensus
	Reports  *service.ReportService
	Exports  *service.ExportService
}

// NewServices builds the repositories, providers and services.
func NewServices(pool *pgxpool.Pool, cfg *infra.Config, logger *slog.Logger) *Services {
	// Repositories
	credRepo := repository.NewCredentialRepository()
	sessionRepo := repository.NewSessionRepository()
	analysisRepo := repository.NewAnalysisRepository()
	reviewRepo := repository.NewReviewRepository()
	reportRepo := repository.NewReportRepository()
	outboxRepo := repository.NewOutboxRepository()
	exportRepo := repository.NewExportRepository()

	// External providers
	breaker := guard.NewCircuitBreaker(cfg.UpstreamFailThreshold, cfg.UpstreamResetTimeout)
	keyOpts := service.APIKeyOptions{EarlyAccessOnly: cfg.EarlyAccessOnly}
	if cfg.RejectLimitedAccount {
		keyOpts.Checker = provider.NewSteamProfileClient(cfg.SteamCommunityURL, logger).WithBreaker(breaker)
	}
	var roster service.RosterResolver = provider.SteamIDRoster{}
	if cfg.RosterURL != "" {
		roster = provider.NewRosterClient(cfg.RosterURL, cfg.RosterCacheLen, cfg.RosterCacheTTL, logger).WithBreaker(breaker)
	}

	keys := service.NewAPIKeyAuthority(pool, credRepo, outboxRepo, keyOpts, logger)
	return &Services{
		Keys:     keys,
		Sessions: service.NewSessionRegistry(pool, keys, blobstore.NewLargeObjectStore(pool, cfg.DemoSpoolDir), sessionRepo, outboxRepo, logger),
		Ingest:   service.NewIngestionPipeline(pool, sessionRepo, analysisRepo, outboxRepo, roster, logger),
		Reviews:  service.NewReviewConsensus(pool, analysisRepo, reviewRepo, outboxRepo, logger),
		Reports:  service.NewReportService(pool, keys, reportRepo, outboxRepo, logger),
		Exports:  service.NewExportService(pool, exportRepo, logger),
	}
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	cfg := deps.Config
	jwtMgr := deps.JWTMgr
	logger := deps.Logger
	svc := NewServices(deps.Pool, cfg, logger)

	origin := deps.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	// Handlers
	sessionHandler := handler.NewSessionHandler(svc.Sessions, handler.SessionLimits{
		DemoMaxBytes: cfg.DemoUploadMax,
		DemoTimeout:  cfg.DemoUploadWindow,
		LateBytesMax: cfg.LateBytesMax,
	}, logger)
	keyHandler := handler.NewKeyHandler(svc.Keys)
	ingestHandler := handler.NewIngestHandler(svc.Ingest)
	reviewHandler := handler.NewReviewHandler(svc.Reviews)
	reportHandler := handler.NewReportHandler(svc.Reports)

	// Admin handlers
	playerAdmin := adminhandler.NewPlayerAdminHandler(svc.Sessions)
	exportAdmin := adminhandler.NewExportHandler(svc.Exports, logger)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.Metrics)
	r.Use(handler.CORSWithOrigins(origin))
	r.Use(handler.JSONContentType)

	// Health and metrics (no auth)
	r.Get("/health", handler.HealthHandler(deps.Pool))
	r.Handle("/metrics", promhttp.Handler())

	// Capture-client routes. Unknown keys are refused before they reach the limiter;
	// services re-validate the key inside their own transaction.
	limiter := guard.NewRateLimiter(cfg.CaptureRateLimit, cfg.CaptureRateWindow)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(svc.Keys))
		r.Use(handler.RateLimit(limiter, func(r *http.Request) string {
			return auth.APIKeyFromContext(r.Context())
		}))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Start)
			r.Get("/", sessionHandler.List)
			r.Post("/close", sessionHandler.Close)
			r.Post("/late_bytes", sessionHandler.LateBytes)
			r.Get("/latest", sessionHandler.Latest)
			r.Post("/{sessionID}/demo", sessionHandler.UploadDemo)
		})
		r.Post("/reports", reportHandler.Submit)
	})

	// Player-authenticated routes
	r.Route("/keys", func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))

		r.Post("/", keyHandler.Provision)
		r.Get("/", keyHandler.Info)
		r.Post("/rotate", keyHandler.Rotate)
	})

	// Analysis clients
	r.Route("/ingest", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))
		r.Use(auth.RequireRole(auth.IngestRoles()...))

		r.Post("/{sessionID}", ingestHandler.Ingest)
	})

	// Reviewer routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateReviewer(jwtMgr))

		r.Route("/reviews/{sessionID}", func(r chi.Router) {
			r.Get("/", reviewHandler.ListAnalysis)
			r.Post("/{targetSteamID}", reviewHandler.SubmitVerdict)
			r.Get("/{targetSteamID}/tally", reviewHandler.Tally)
		})
		r.Get("/demos/{sessionID}", sessionHandler.DownloadDemo)
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Get("/players/{steamID}/sessions", playerAdmin.ListSessions)
		r.With(auth.RequireRole(auth.RoleAdmin)).Get("/export/{table}", exportAdmin.Export)
	})

	return r
}
