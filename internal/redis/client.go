package redis

import (
	"context"
	"fmt"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opts.PoolSize = constants.RedisPoolSize
	opts.MinIdleConns = constants.RedisMinIdleConns
	opts.ConnMaxIdleTime = constants.RedisConnMaxIdleTime
	opts.ConnMaxLifetime = constants.RedisConnMaxLifetime

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis connection established")
	return rdb, nil
}
