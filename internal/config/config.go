// Package config loads the pricing worker configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrMissingRedisURL is returned when REDIS_URL is unset.
var ErrMissingRedisURL = errors.New("REDIS_URL is required")

// Config holds the worker configuration.
type Config struct {
	AppEnv           string
	HTTPPort         string
	RedisURL         string
	LogFormat        string
	LogLevel         string
	MetricsNamespace string

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	QueuePrefix            string
	QueueConcurrency       int
	QueueVisibilityTimeout time.Duration

	PricingCacheTTL       time.Duration
	VATRates              pricing.TaxRates
	DeliveryFreeThreshold int64

	OTelExporter      string
	OTelEndpoint      string
	OTelSamplingRatio float64

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// Load reads the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	rates, err := pricing.ParseTaxRates(k.String("VAT_RATES"))
	if err != nil {
		return nil, fmt.Errorf("VAT_RATES: %w", err)
	}

	cfg := &Config{
		AppEnv:           valueOrDefault(k.String("APP_ENV"), "development"),
		HTTPPort:         valueOrDefault(k.String("HTTP_PORT"), "8081"),
		RedisURL:         strings.TrimSpace(k.String("REDIS_URL")),
		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "toko_pricing"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		QueuePrefix:            valueOrDefault(k.String("QUEUE_PREFIX"), "pricing"),
		QueueConcurrency:       parseInt(k.String("QUEUE_CONCURRENCY"), 4),
		QueueVisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "30s"),

		PricingCacheTTL:       parseDuration(k.String("PRICING_CACHE_TTL"), "24h"),
		VATRates:              rates,
		DeliveryFreeThreshold: int64(parseInt(k.String("DELIVERY_FREE_THRESHOLD"), 0)),

		OTelExporter:      valueOrDefault(k.String("OTEL_EXPORTER"), "none"),
		OTelEndpoint:      strings.TrimSpace(k.String("OTEL_ENDPOINT")),
		OTelSamplingRatio: parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),

		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
	}

	if cfg.RedisURL == "" {
		return nil, ErrMissingRedisURL
	}
	if cfg.QueueConcurrency < 1 {
		cfg.QueueConcurrency = 1
	}
	return cfg, nil
}

// HTTPAddr returns the listen address of the worker's HTTP surface.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.HTTPPort)
	if port == "" {
		port = "8081"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// ChargeKeys returns the Redis hashes holding list prices, delivery fees and
// payment fees.
func (c *Config) ChargeKeys() (catalog, deliveryFees, paymentFees string) {
	return c.QueuePrefix + ":catalog", c.QueuePrefix + ":delivery-fees", c.QueuePrefix + ":payment-fees"
}

func valueOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	d, err := time.ParseDuration(valueOrDefault(value, fallback))
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// LoadForTests sets env for the duration of Load and restores it afterwards.
// Empty values unset the variable.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key, value := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := setEnvVar(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]*string) error {
	var errs []error
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %w", errors.Join(errs...))
	}
	return nil
}
