package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces this package's keys inside a shared Redis
// instance (original's cache used a filesystem directory for the same
// purpose; here prefix + SCAN stands in for "only this subtree").
const redisKeyPrefix = "via-canvas:extract:cache:"

// RedisCache is a Cache backed by Redis, for deployments that run the
// extraction cache out-of-process instead of in the orchestrator's own
// memory (grounded on store/redis/redis.go's client-wrapping shape).
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client. The caller owns the
// client's lifecycle (construction, auth, Close).
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) key(rawURL string) string {
	return redisKeyPrefix + rawURL
}

// Get returns a cached result for rawURL, if present and unexpired. TTL
// is enforced by Redis itself via the expiration Set attaches, so unlike
// MemoryCache there is no lazy-expiry check here.
func (c *RedisCache) Get(ctx context.Context, rawURL string) (ExtractionResult, bool, error) {
	raw, err := c.client.Get(ctx, c.key(rawURL)).Bytes()
	if err == redis.Nil {
		return ExtractionResult{}, false, nil
	}
	if err != nil {
		return ExtractionResult{}, false, fmt.Errorf("extract: redis cache get: %w", err)
	}

	var result ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ExtractionResult{}, false, fmt.Errorf("extract: redis cache decode: %w", err)
	}
	result.Cached = true
	return result, true, nil
}

// Set stores result for rawURL with cacheTTL expiration.
func (c *RedisCache) Set(ctx context.Context, rawURL string, result ExtractionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("extract: redis cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(rawURL), raw, cacheTTL).Err(); err != nil {
		return fmt.Errorf("extract: redis cache set: %w", err)
	}
	return nil
}

// Clear deletes every key this cache owns, scanning by prefix rather than
// flushing the database so it can share a Redis instance with other
// callers.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("extract: redis cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("extract: redis cache del: %w", err)
	}
	return nil
}
