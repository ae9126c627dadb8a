package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// rangeKeyPrefix namespaces cached range reports so they can be dropped as a
// group when shipments change.
const rangeKeyPrefix = "report:range:"

// Cache stores rendered reports as JSON in Redis. A nil client disables
// caching entirely; every lookup then misses.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// InvalidateRange drops every cached range report. Shipment writes call this
// so a fresh report never misses a shipment committed moments earlier.
func (c *Cache) InvalidateRange(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, rangeKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
