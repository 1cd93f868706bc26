package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	JobTimeout         = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	UpstreamMaxConnsPerHost     = 100
	UpstreamReadTimeout         = 10 * time.Second
	UpstreamWriteTimeout        = 10 * time.Second
	UpstreamMaxIdleConnDuration = 1 * time.Minute
	UpstreamMaxBodySnippet      = 512
)

const (
	RedisPoolSize        = 10
	RedisMinIdleConns    = 5
	RedisConnMaxIdleTime = 5 * time.Minute
	RedisConnMaxLifetime = 30 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// match-v5 ids endpoint refuses counts above this
	MaxMatchPageSize = 100

	DefaultTagLine = "NA1"

	DetailJobName       = "fetch_match_details"
	ResyncLockKey       = "lock:resync"
	ResyncLockTTL       = 2 * time.Minute
	ResyncPageSize      = 200
	QueuePollInterval   = 500 * time.Millisecond
	QueueReapInterval   = 30 * time.Second
	WorkerMetricsHash   = "metrics:worker"
	RateLimitKeyPrefix  = "rl"
	QueueKeyPrefix      = "queue"
	ListMatchesMaxLimit = 100
)
