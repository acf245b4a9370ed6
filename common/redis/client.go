package redis

import (
	"context"
	"fmt"
	"time"

	"smartwake/common/config"

	"github.com/go-redis/redis/v8"
)

// Edge broker defaults: one scheduler loop plus the stream consumer, on a local socket
const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
	pingTimeout = 5 * time.Second
	poolSize    = 4
)

// NewRedisClient creates a client with short timeouts so a stalled broker cannot hold a cycle
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
	})
}

// Ping checks the broker answers within pingTimeout
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", client.Options().Addr, err)
	}
	return nil
}

// Close is a no-op for a nil client
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
