package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PGPort      int    `env:"POSTGRES_PORT" envDefault:"8050"`
	PGUser      string `env:"POSTGRES_USER" envDefault:"masterbase"`
	PGPassword  string `env:"POSTGRES_PASSWORD" envDefault:"masterbase"`
	PGDatabase  string `env:"POSTGRES_DB" envDefault:"demos"`
	PGMaxConns  int32  `env:"POSTGRES_MAX_CONNS" envDefault:"20"`

	// Migrations and schema check run at startup
	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`

	// JWT
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry   time.Duration `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTReviewerExpiry time.Duration `env:"JWT_REVIEWER_EXPIRY" envDefault:"12h"`
	JWTAdminExpiry    time.Duration `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort          int           `env:"API_PORT" envDefault:"8000"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	DemoUploadMax    int64         `env:"DEMO_UPLOAD_MAX_BYTES" envDefault:"1073741824"`
	DemoUploadWindow time.Duration `env:"DEMO_UPLOAD_TIMEOUT" envDefault:"10m"`
	DemoSpoolDir     string        `env:"DEMO_SPOOL_DIR"`
	LateBytesMax     int           `env:"LATE_BYTES_MAX" envDefault:"65536"`

	// Per-key limit on capture-client routes
	CaptureRateLimit  int           `env:"CAPTURE_RATE_LIMIT" envDefault:"120"`
	CaptureRateWindow time.Duration `env:"CAPTURE_RATE_WINDOW" envDefault:"1m"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopic   string `env:"KAFKA_TOPIC_PREFIX" envDefault:"masterbase"`

	// Outbox publisher
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Provisioning policy
	EarlyAccessOnly      bool   `env:"EARLY_ACCESS_ONLY" envDefault:"false"`
	RejectLimitedAccount bool   `env:"REJECT_LIMITED_ACCOUNTS" envDefault:"false"`
	SteamCommunityURL    string `env:"STEAM_COMMUNITY_URL" envDefault:"https://steamcommunity.com"`

	// Roster lookup for detections; empty means in-capture ids are SteamIDs
	RosterURL      string        `env:"ROSTER_URL"`
	RosterCacheLen int           `env:"ROSTER_CACHE_SIZE" envDefault:"4096"`
	RosterCacheTTL time.Duration `env:"ROSTER_CACHE_TTL" envDefault:"1h"`

	// Circuit breaker for Steam and roster calls
	UpstreamFailThreshold int           `env:"UPSTREAM_FAIL_THRESHOLD" envDefault:"5"`
	UpstreamResetTimeout  time.Duration `env:"UPSTREAM_RESET_TIMEOUT" envDefault:"30s"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.DemoUploadMax <= 0 {
		return fmt.Errorf("DEMO_UPLOAD_MAX_BYTES must be positive")
	}
	if c.LateBytesMax <= 0 {
		return fmt.Errorf("LATE_BYTES_MAX must be positive")
	}
	if c.CaptureRateLimit <= 0 || c.CaptureRateWindow <= 0 {
		return fmt.Errorf("CAPTURE_RATE_LIMIT and CAPTURE_RATE_WINDOW must be positive")
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
