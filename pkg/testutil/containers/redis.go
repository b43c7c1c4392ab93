//go:build integration

package containers

import (
	"context"
	"fmt"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"loyalgate/internal/platform/config"
	"loyalgate/internal/platform/redis"
)

// RedisContainer is a Redis instance reached through the same client wrapper the server uses.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	URL       string
	Client    *redis.Client
}

func startRedis() (*RedisContainer, error) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("start redis container: %w", err)
	}
	url, err := container.ConnectionString(ctx)
	if err == nil {
		var client *redis.Client
		if client, err = redis.New(ctx, config.RedisConfig{URL: url, PoolSize: 50}); err == nil {
			return &RedisContainer{Container: container, URL: url, Client: client}, nil
		}
	}
	_ = container.Terminate(ctx)
	return nil, fmt.Errorf("connect to redis container: %w", err)
}

// FlushAll drops every key; suites call it in SetupTest.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
