package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/calmly-app/calmly/internal/config"
)

func redisOptions(url string, rc config.RedisConfig) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if rc.PoolSize > 0 {
		opt.PoolSize = rc.PoolSize
	}
	if rc.DialTimeout > 0 {
		opt.DialTimeout = rc.DialTimeout
	}
	return opt, nil
}

// NewRedisClient connects the client backing the OTP store and idempotency
// replay, and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	opt, err := redisOptions(cfg.RedisURL, cfg.Redis)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
