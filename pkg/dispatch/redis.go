package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "loyalflow:dispatch:"

// RedisClaimer shares claims between workers with SET NX.
type RedisClaimer struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClaimer connects to the Redis server at url (redis://host:port/db).
func NewRedisClaimer(ctx context.Context, logger *slog.Logger, url string, ttl time.Duration) (*RedisClaimer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return &RedisClaimer{client: client, ttl: ttl, logger: logger.With("module", "redis_claimer")}, nil
}

func (c *RedisClaimer) Claim(ctx context.Context, executionID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, keyPrefix+executionID, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim execution %s: %w", executionID, err)
	}

	if !ok {
		c.logger.DebugContext(ctx, "Execution already claimed", "execution_id", executionID)
	}

	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, executionID string) error {
	if err := c.client.Del(ctx, keyPrefix+executionID).Err(); err != nil {
		return fmt.Errorf("failed to release execution %s: %w", executionID, err)
	}

	return nil
}

func (c *RedisClaimer) Close() error {
	return c.client.Close()
}
