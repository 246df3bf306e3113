package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/usecase"
)

const (
	summaryKey  = "reconciler:summary"
	scratchGlob = "reconciler:scratch:*"
)

// RedisCache caches the cross-store summary between reporting requests and
// provides the scratch flush used to bound resident memory during long
// repair drains.
type RedisCache struct {
	client     *redis.Client
	logger     *zap.Logger
	summaryTTL time.Duration
}

var _ usecase.SummaryCache = (*RedisCache)(nil)

// NewRedisCache creates a new Redis cache instance.
func NewRedisCache(client *redis.Client, summaryTTL time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if summaryTTL <= 0 {
		summaryTTL = 5 * time.Minute
	}
	return &RedisCache{
		client:     client,
		logger:     logger,
		summaryTTL: summaryTTL,
	}
}

// GetSummary retrieves the cached summary, reporting a miss as absent.
func (c *RedisCache) GetSummary(ctx context.Context) (*usecase.IndexSummary, bool) {
	data, err := c.client.Get(ctx, summaryKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Failed to get summary from cache", zap.Error(err))
		}
		return nil, false
	}

	var summary usecase.IndexSummary
	if err := msgpack.Unmarshal(data, &summary); err != nil {
		c.logger.Warn("Failed to unmarshal cached summary", zap.Error(err))
		return nil, false
	}
	return &summary, true
}

// SetSummary stores the summary with the configured TTL.
func (c *RedisCache) SetSummary(ctx context.Context, summary *usecase.IndexSummary) error {
	data, err := msgpack.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey, data, c.summaryTTL).Err()
}

// FlushScratch drops the reconciler's scratch keys. Wired as the repair
// dispatcher's between-batches hook to keep memory bounded on long drains.
func (c *RedisCache) FlushScratch(ctx context.Context) {
	keys, err := c.client.Keys(ctx, scratchGlob).Result()
	if err != nil {
		c.logger.Warn("Failed to list scratch keys", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to flush scratch keys", zap.Error(err))
		return
	}
	c.logger.Debug("Scratch cache flushed", zap.Int("keys", len(keys)))
}
