package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses REDIS_URL and verifies the connection. Returns nil
// when Redis is disabled so callers fall back to in-process implementations.
func NewRedisClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*redis.Client, error) {
	if !cfg.RedisEnabled {
		logger.Info("redis disabled")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("connected to redis", "addr", opts.Addr)
	return client, nil
}
