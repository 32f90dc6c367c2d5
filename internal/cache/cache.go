package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "mediagrab:cache:"

type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

// New connects to the Redis instance at redisURL (redis://[:pass@]host:port/db).
func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &Cache{client: client, log: logger.Default().WithComponent("cache")}
	c.log.Info(ctx, "connected to redis", map[string]interface{}{"addr": opts.Addr})
	return c, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached value for key. Misses and errors both report false;
// errors are logged.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		c.log.Debug(ctx, "cache miss", map[string]interface{}{"key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return "", false
	}
	c.log.Debug(ctx, "cache hit", map[string]interface{}{"key": key})
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, KeyPrefix+key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		return apperrors.CacheError("failed to write cache entry").WithCause(err)
	}
	c.log.Debug(ctx, "cache set", map[string]interface{}{"key": key, "ttl": ttl.String()})
	return nil
}

// GetJSON decodes the cached value for key into dst. A value that fails to
// decode counts as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		c.log.Warn(ctx, "cache entry is not valid JSON", map[string]interface{}{"key": key})
		return false
	}
	return true
}

// SetJSON stores v encoded as JSON.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.CacheError("failed to encode cache entry").WithCause(err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return apperrors.CacheError("failed to delete cache entry").WithCause(err)
	}
	return nil
}
