package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/domain"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const placeholderAPIKey = "replace-me"

type Config struct {
	RiotAPIKey  string
	RegionalURL string
	PlatformURL string
	Platform    string

	DBDriver string
	DBDSN    string
	RedisURL string

	ServerPort        string
	WorkerMetricsPort string
	LogLevel          string

	Sync    SyncConfig
	Retry   RetryConfig
	Breaker BreakerConfig
	Worker  WorkerConfig
}

// SyncConfig bounds the work one match sync performs before returning.
type SyncConfig struct {
	InlineLimit int
	BatchSize   int
	MatchCount  int
	PageSize    int
}

type RetryConfig struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	Jitter         float64
	MaxQuotaWaits  int
	RequestTimeout time.Duration
}

type BreakerConfig struct {
	Enabled  bool
	Failures int
	Timeout  time.Duration
}

type WorkerConfig struct {
	Concurrency       int
	VisibilityTimeout time.Duration
	DedupeTTL         time.Duration
	ResyncSchedule    string
	ResyncConcurrency int
	ResyncRate        float64
	ResyncInlineLimit int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RiotAPIKey:        getEnv("RIOT_API_KEY", ""),
		RegionalURL:       strings.TrimRight(getEnv("RIOT_REGIONAL_URL", "https://americas.api.riotgames.com"), "/"),
		PlatformURL:       strings.TrimRight(getEnv("RIOT_PLATFORM_URL", "https://na1.api.riotgames.com"), "/"),
		Platform:          strings.ToUpper(getEnv("RIOT_PLATFORM", "NA1")),
		DBDriver:          getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:             getEnv("DB_DSN", "league.db"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Sync: SyncConfig{
			InlineLimit: getEnvInt("SYNC_INLINE_LIMIT", 5),
			BatchSize:   getEnvInt("SYNC_BATCH_SIZE", 5),
			MatchCount:  getEnvInt("SYNC_MATCH_COUNT", 20),
			PageSize:    getEnvInt("SYNC_PAGE_SIZE", 20),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseBackoff:    getEnvDuration("RETRY_BASE_BACKOFF", time.Second),
			MaxBackoff:     getEnvDuration("RETRY_MAX_BACKOFF", 60*time.Second),
			Jitter:         getEnvFloat("RETRY_JITTER", 0.5),
			MaxQuotaWaits:  getEnvInt("RATE_LIMIT_MAX_WAITS", 10),
			RequestTimeout: getEnvDuration("UPSTREAM_TIMEOUT", constants.ExternalAPITimeout),
		},
		Breaker: BreakerConfig{
			Enabled:  getEnvBool("BREAKER_ENABLED", true),
			Failures: getEnvInt("BREAKER_FAILURES", 8),
			Timeout:  getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 4),
			VisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			DedupeTTL:         getEnvDuration("QUEUE_DEDUPE_TTL", time.Hour),
			ResyncSchedule:    getEnv("RESYNC_SCHEDULE", "@every 6h"),
			ResyncConcurrency: getEnvInt("RESYNC_CONCURRENCY", 2),
			ResyncRate:        getEnvFloat("RESYNC_RATE", 1),
			ResyncInlineLimit: getEnvInt("RESYNC_INLINE_LIMIT", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("regional_url", cfg.RegionalURL).
		Str("platform_url", cfg.PlatformURL).
		Str("db_driver", cfg.DBDriver).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("inline_limit", cfg.Sync.InlineLimit).
		Int("batch_size", cfg.Sync.BatchSize).
		Int("match_count", cfg.Sync.MatchCount).
		Int("retry_attempts", cfg.Retry.MaxAttempts).
		Dur("retry_base_backoff", cfg.Retry.BaseBackoff).
		Str("resync_schedule", cfg.Worker.ResyncSchedule).
		Msg("configuration loaded")

	return cfg, nil
}

// Validate reports every problem as a domain.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string

	if c.RiotAPIKey == "" || c.RiotAPIKey == placeholderAPIKey {
		problems = append(problems, "RIOT_API_KEY is required")
	}
	switch c.DBDriver {
	case "sqlite3", "pgx":
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	if c.Sync.InlineLimit < 0 {
		problems = append(problems, "SYNC_INLINE_LIMIT must not be negative")
	}
	if c.Sync.BatchSize < 1 {
		problems = append(problems, "SYNC_BATCH_SIZE must be at least 1")
	}
	if c.Sync.MatchCount < 1 {
		problems = append(problems, "SYNC_MATCH_COUNT must be at least 1")
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > constants.MaxMatchPageSize {
		problems = append(problems, fmt.Sprintf("SYNC_PAGE_SIZE must be between 1 and %d", constants.MaxMatchPageSize))
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Retry.MaxQuotaWaits < 1 {
		problems = append(problems, "RATE_LIMIT_MAX_WAITS must be at least 1")
	}
	if c.Retry.BaseBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		problems = append(problems, "RETRY_BASE_BACKOFF must be positive and not above RETRY_MAX_BACKOFF")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		problems = append(problems, "RETRY_JITTER must be between 0 and 1")
	}
	if c.Worker.Concurrency < 1 || c.Worker.ResyncConcurrency < 1 {
		problems = append(problems, "worker concurrency settings must be at least 1")
	}
	if c.Worker.ResyncRate <= 0 {
		problems = append(problems, "RESYNC_RATE must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
