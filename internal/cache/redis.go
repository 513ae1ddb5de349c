package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/shutterscope/shutterscope/internal/models"
)

const redisKey = "shutterscope:statistics"

type redisCache struct {
	client  *redis.Client
	logger  *slog.Logger
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis constructs a Redis backed cache and verifies the connection.
func NewRedis(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return newRedisCache(client, ttl, logger), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *redisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCache{
		client:  client,
		logger:  logger,
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
	}
}

func (c *redisCache) Get(ctx context.Context) (*models.Statistics, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logRedisError("get", err)
		}
		return nil, false
	}
	stats, err := decodeSnapshot(raw)
	if err != nil {
		c.logRedisError("decode", err)
		return nil, false
	}
	return stats, true
}

func (c *redisCache) Set(ctx context.Context, stats *models.Statistics) {
	if c.ttl <= 0 || stats == nil {
		return
	}
	raw, err := encodeSnapshot(stats)
	if err != nil {
		c.logRedisError("encode", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, redisKey, raw, c.ttl).Err(); err != nil {
		c.logRedisError("set", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Del(ctx, redisKey).Err(); err != nil {
		c.logRedisError("del", err)
	}
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

func (c *redisCache) Name() string { return "redis" }

func (c *redisCache) logRedisError(op string, err error) {
	c.logger.Error("redis snapshot cache error", "op", op, "error", err)
}

func encodeSnapshot(stats *models.Statistics) ([]byte, error) {
	return json.Marshal(stats)
}

// decodeSnapshot parses a cached value. A null code list decodes as empty.
func decodeSnapshot(raw []byte) (*models.Statistics, error) {
	var stats models.Statistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, err
	}
	if stats.ResponseCodeStats == nil {
		stats.ResponseCodeStats = []models.ResponseCodeStat{}
	}
	return &stats, nil
}
