package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":         "redis://localhost:6379/0",
		"HTTP_PORT":         "",
		"QUEUE_CONCURRENCY": "",
		"VAT_RATES":         "",
		"LOCK_TTL":          "",
		"QUEUE_PREFIX":      "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8081", cfg.HTTPAddr())
	require.Equal(t, 4, cfg.QueueConcurrency)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Empty(t, cfg.VATRates)

	catalog, deliveryFees, _ := cfg.ChargeKeys()
	require.Equal(t, "pricing:catalog", catalog)
	require.Equal(t, "pricing:delivery-fees", deliveryFees)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":               "redis://cache:6379/1",
		"HTTP_PORT":               ":9000",
		"QUEUE_CONCURRENCY":       "0",
		"VAT_RATES":               "ch:0.081, DE:0.19",
		"DELIVERY_FREE_THRESHOLD": "5000",
		"LOCK_TTL":                "not-a-duration",
		"BREAKER_FAILURE_RATIO":   "0.25",
	})
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.Equal(t, 1, cfg.QueueConcurrency)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, int64(5000), cfg.DeliveryFreeThreshold)
	require.Equal(t, 0.25, cfg.BreakerFailureRatio)

	rate, ok := cfg.VATRates.Rate("CH")
	require.True(t, ok)
	require.Equal(t, 0.081, rate)
}

func TestLoadRequiresRedis(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"REDIS_URL": ""})
	require.ErrorIs(t, err, config.ErrMissingRedisURL)

	_, err = config.LoadForTests(map[string]string{"REDIS_URL": "redis://x", "VAT_RATES": "CH"})
	require.Error(t, err)
}
