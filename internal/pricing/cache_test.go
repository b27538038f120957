package pricing_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

func TestCachePutGet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := pricing.NewCache(client, time.Minute)
	ctx := context.Background()
	key := pricing.OrderKey("o-1", "position", "p-1")
	require.Equal(t, "pricing:order:o-1:position:p-1", key)

	_, ok, err := cache.Get(ctx, key, testSchema)
	require.NoError(t, err)
	require.False(t, ok)

	sheet := pricing.NewSheet(testSchema, "CHF", 2, scenarioARows())
	require.NoError(t, cache.Put(ctx, key, sheet))
	require.Equal(t, time.Minute, mr.TTL(key))

	got, ok, err := cache.Get(ctx, key, testSchema)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sheet.Gross(), got.Gross())
	require.Equal(t, sheet.UnitPrice(false), got.UnitPrice(false))
	require.Equal(t, "ITEM1", got.Rows()[0].Adapter())

	require.NoError(t, cache.Delete(ctx, key))
	require.False(t, mr.Exists(key))
}

func TestCacheDisabled(t *testing.T) {
	cache := pricing.NewCache(nil, time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "k", pricing.NewSheet(testSchema, "CHF", 1, nil)))
	_, ok, err := cache.Get(ctx, "k", testSchema)
	require.NoError(t, err)
	require.False(t, ok)
}
