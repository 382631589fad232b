package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pushlytics/api/config"
	"pushlytics/api/logging"
)

// NewRedisClient connects to the result cache. It returns nil, nil when no
// URL is configured.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info().Str("addr", opt.Addr).Int("db", opt.DB).Msg("connected to Redis")
	return client, nil
}
