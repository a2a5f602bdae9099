package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/ratelimit"
	"github.com/dukex/flowrun/pkg/sweeper"
)

const redisKeyPrefix = "flowrun:"

// NewRedisClient returns nil when url is empty.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return client, nil
}

// NewBindingStore uses Redis when a client is given, so several API and
// orchestrator processes share bindings. The memory store only works when
// both roles run in one process.
func NewBindingStore(client *redis.Client, ttl time.Duration, sw *sweeper.Sweeper, logger *slog.Logger) (connection.BindingStore, error) {
	if client != nil {
		return connection.NewRedisStore(client, redisKeyPrefix, ttl), nil
	}

	store := connection.NewMemoryStore(ttl)
	if err := store.Register(sw, logger); err != nil {
		return nil, err
	}

	return store, nil
}

// NewLimiter mirrors NewBindingStore for the per-project rate limiter.
func NewLimiter(client *redis.Client, sw *sweeper.Sweeper, logger *slog.Logger) (ratelimit.Limiter, error) {
	if client != nil {
		return ratelimit.NewRedisLimiter(client, redisKeyPrefix, ratelimit.DefaultWindow), nil
	}

	limiter := ratelimit.NewMemoryLimiter(ratelimit.DefaultWindow)
	if err := limiter.Register(sw, logger); err != nil {
		return nil, err
	}

	return limiter, nil
}

// NewRelay connects to NATS when url is set. The returned function closes
// the connection.
func NewRelay(ctx context.Context, url, name string) (connection.Relay, func(), error) {
	if url == "" {
		return connection.NewMemoryRelay(), func() {}, nil
	}

	conn, err := connection.ConnectNATS(ctx, url, name)
	if err != nil {
		return nil, nil, err
	}

	return connection.NewNATSRelay(conn, connection.DefaultSubjectPrefix, connection.DefaultPushTimeout), conn.Close, nil
}
