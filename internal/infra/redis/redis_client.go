package redis

import (
	"context"

	"goalforge-async/internal/config"

	"github.com/go-redis/redis/v8"
)

// redClient wraps the go-redis client so the rest of the module never
// constructs one directly; connectivity is verified at construction and the
// only consumers are main's Close defer and the per-job RedisLocker.
type redClient struct {
	cli *redis.Client
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redClient, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redClient{cli: c}, nil
}

func (c *redClient) Close() error { return c.cli.Close() }
