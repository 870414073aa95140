package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/config"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores merged disabled ranges per asset. Entries are tagged with
// the business day they were computed for and are misses on any other day.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) *RedisCache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), ttl)
}

func NewWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

type entry struct {
	Day    string            `json:"day"`
	Ranges []daterange.Range `json:"ranges"`
}

type allEntry struct {
	Day    string                      `json:"day"`
	Assets map[int64][]daterange.Range `json:"assets"`
}

// GetRanges returns ok=false on a miss.
func (c *RedisCache) GetRanges(ctx context.Context, assetID int64, today time.Time) ([]daterange.Range, bool, error) {
	var e entry
	ok, err := c.get(ctx, assetKey(assetID), &e)
	if err != nil || !ok || e.Day != daterange.FormatDay(today) {
		return nil, false, err
	}
	return e.Ranges, true, nil
}

func (c *RedisCache) SetRanges(ctx context.Context, assetID int64, today time.Time, ranges []daterange.Range) error {
	return c.set(ctx, assetKey(assetID), entry{Day: daterange.FormatDay(today), Ranges: ranges})
}

func (c *RedisCache) GetAll(ctx context.Context, today time.Time) (map[int64][]daterange.Range, bool, error) {
	var e allEntry
	ok, err := c.get(ctx, allKey(), &e)
	if err != nil || !ok || e.Day != daterange.FormatDay(today) {
		return nil, false, err
	}
	return e.Assets, true, nil
}

func (c *RedisCache) SetAll(ctx context.Context, today time.Time, byAsset map[int64][]daterange.Range) error {
	return c.set(ctx, allKey(), allEntry{Day: daterange.FormatDay(today), Assets: byAsset})
}

// Invalidate drops the asset entry and the all-assets entry.
func (c *RedisCache) Invalidate(ctx context.Context, assetID int64) error {
	return c.client.Del(ctx, assetKey(assetID), allKey()).Err()
}

// AcquireLock takes a named lock that expires after ttl.
func (c *RedisCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, lockKey(name), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseLock(ctx context.Context, name string) error {
	return c.client.Del(ctx, lockKey(name)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

func assetKey(assetID int64) string {
	return fmt.Sprintf("cache:availability:asset:%d", assetID)
}

func allKey() string {
	return "cache:availability:all"
}

func lockKey(name string) string {
	return "lock:" + name
}
