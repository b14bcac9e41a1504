package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"LocalSpot/core/metadata"
	"LocalSpot/logger"

	"github.com/go-redis/redis/v8"
)

const tagOpTimeout = 500 * time.Millisecond

// kv is the subset of the Redis client the tag cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// TagCache stores parsed tags in Redis. Every failure degrades to a miss.
type TagCache struct {
	client kv
	ttl    time.Duration
}

var _ metadata.TagStore = (*TagCache)(nil)

// NewTagCache returns a cache writing entries with the given TTL.
func NewTagCache(client *redis.Client, ttl time.Duration) *TagCache {
	return &TagCache{client: client, ttl: ttl}
}

// Get returns cached tags for key.
func (c *TagCache) Get(ctx context.Context, key string) (metadata.Tags, bool) {
	ctx, cancel := context.WithTimeout(ctx, tagOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("tag cache read failed",
				logger.String("key", key),
				logger.ErrorField(err))
		}
		return metadata.Tags{}, false
	}

	var tags metadata.Tags
	if err := json.Unmarshal(data, &tags); err != nil {
		logger.Warn("discarding corrupt tag cache entry",
			logger.String("key", key),
			logger.ErrorField(err))
		return metadata.Tags{}, false
	}
	return tags, true
}

// Set stores tags under key.
func (c *TagCache) Set(ctx context.Context, key string, tags metadata.Tags) {
	data, err := json.Marshal(tags)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, tagOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("tag cache write failed",
			logger.String("key", key),
			logger.ErrorField(err))
	}
}
