package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores sheet snapshots in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// OrderKey is the cache key of an order's sheet. Parts narrow it to a
// sub-ledger, e.g. OrderKey(id, "delivery").
func OrderKey(orderID string, parts ...string) string {
	key := "pricing:order:" + orderID
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Put stores the sheet snapshot under key.
func (c *Cache) Put(ctx context.Context, key string, sheet *Sheet) error {
	if c == nil || c.client == nil || key == "" || sheet == nil {
		return nil
	}
	data, err := json.Marshal(sheet.Snapshot())
	if err != nil {
		return fmt.Errorf("encode sheet: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Get rebuilds a cached sheet. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, key string, schema Schema) (*Sheet, bool, error) {
	if c == nil || c.client == nil || key == "" {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decode sheet: %w", err)
	}
	return FromSnapshot(schema, snap), true, nil
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
