package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/delivery"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/health"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/order"
	"github.com/noah-isme/toko-pricing/internal/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/product"
	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/recalc"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "pricing-worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:    "toko-pricing-worker",
		ServiceVersion: version,
		Environment:    cfg.AppEnv,
		Endpoint:       cfg.OTelEndpoint,
		Exporter:       cfg.OTelExporter,
		SamplingRatio:  cfg.OTelSamplingRatio,
		QueuePrefix:    cfg.QueuePrefix,
		TaxCountries:   lo.Keys(cfg.VATRates),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracer")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)
	queue.MustRegisterMetrics(cfg.MetricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil)

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	svc := newService(cfg, redisClient)
	worker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueuePrefix,
		Kind:              queue.KindOrderRecalculate,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		Handler:           recalc.TaskHandler{Service: svc},
		Logger:            logger,
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(logger, httpMetrics, redisClient),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http_listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	workerErr := make(chan error, 1)
	go func() {
		logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker_starting")
		workerErr <- worker.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("http_server_failed")
		}
		stop()
	}

	health.SetReady(false)
	if err := <-workerErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker_stopped_with_error")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http_shutdown")
	}
	logger.Info().Msg("worker_shutdown_complete")
}

func newService(cfg *config.Config, client *redis.Client) *recalc.Service {
	breaker := func(name string) *resilience.Breaker {
		return resilience.NewBreaker(name, resilience.Settings{
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenFor:      cfg.BreakerOpenFor,
		})
	}
	catalogKey, deliveryKey, paymentKey := cfg.ChargeKeys()
	catalog := pricing.RedisCharges{R: client, Key: catalogKey}
	deliveryFees := pricing.RedisCharges{R: client, Key: deliveryKey}
	paymentFees := pricing.RedisCharges{R: client, Key: paymentKey}

	products := product.NewRegistry().MustRegister(
		pricing.Guard[product.Context](product.NewCatalogPrice(catalog), breaker("catalog")),
		product.NewDiscount(),
		product.NewVAT(cfg.VATRates),
	)
	deliveries := delivery.NewRegistry().MustRegister(
		pricing.Guard[delivery.Context](delivery.NewProviderFee(deliveryFees), breaker("delivery-fees")),
		delivery.NewFreeThreshold(cfg.DeliveryFreeThreshold),
		delivery.NewVAT(cfg.VATRates),
	)
	payments := payment.NewRegistry().MustRegister(
		pricing.Guard[payment.Context](payment.NewProviderFee(paymentFees), breaker("payment-fees")),
		payment.NewVAT(cfg.VATRates),
	)

	return &recalc.Service{
		Locker: lock.Locker{R: client, Prefix: cfg.QueuePrefix, TTL: cfg.LockTTL, RetryBackoff: cfg.LockRetryBackoff},
		Discounts: &discount.Manager{
			Director: defaultDirector(),
			Store:    discount.NewRedisStore(client, cfg.QueuePrefix+":"),
		},
		Products:   products,
		Deliveries: deliveries,
		Payments:   payments,
		Orders:     order.NewDefaultRegistry(),
		Cache:      pricing.NewCache(client, cfg.PricingCacheTTL),
		Events:     &events.Bus{Store: events.RedisStreamStore{R: client, Stream: cfg.QueuePrefix + ":events", MaxLen: 10000}},
	}
}

func defaultDirector() *discount.Director {
	return discount.NewDirector().MustRegister(
		&discount.TagRate{
			Descriptor:         pricing.Descriptor{AdapterKey: "staff", AdapterLabel: "Staff discount", AdapterVersion: "1.0.0", Index: 0},
			Tag:                "staff",
			Rate:               0.2,
			PricingAdapterKeys: []string{order.KeyDiscount},
		},
		&discount.ManualRate{
			Descriptor:         pricing.Descriptor{AdapterKey: "goodwill", AdapterLabel: "Goodwill", AdapterVersion: "1.0.0", Index: 100},
			Rate:               0.1,
			PricingAdapterKeys: []string{order.KeyDiscount},
		},
	)
}

func newRouter(logger zerolog.Logger, metrics *obs.HTTPMetrics, client *redis.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)

	h := health.Handler{Redis: health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })}
	r.Get("/healthz", h.Live)
	r.Get("/readyz", h.Ready)
	r.Method(http.MethodGet, "/metrics", obs.MetricsHandler(nil))
	return otelhttp.NewHandler(r, "pricing-worker")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}
