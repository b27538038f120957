package main

import (
	"context"
	"flag"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/recalc"
)

type charge struct {
	key    pricing.ChargeKey
	charge pricing.Charge
}

var (
	catalog = []charge{
		{pricing.ChargeKey{ID: "shirt", Currency: "CHF"}, pricing.Charge{Amount: 2000, IsTaxable: true}},
		{pricing.ChargeKey{ID: "socks", Currency: "CHF"}, pricing.Charge{Amount: 500, IsTaxable: true}},
		{pricing.ChargeKey{ID: "shirt", Currency: "EUR"}, pricing.Charge{Amount: 1900, IsTaxable: true}},
		{pricing.ChargeKey{ID: "gift-card", Currency: "CHF"}, pricing.Charge{Amount: 5000}},
	}
	deliveryFees = []charge{
		{pricing.ChargeKey{ID: "post", Currency: "CHF"}, pricing.Charge{Amount: 900, IsTaxable: true}},
		{pricing.ChargeKey{ID: "post", Currency: "CHF", Country: "LI"}, pricing.Charge{Amount: 1200, IsTaxable: true}},
		{pricing.ChargeKey{ID: "express", Currency: "CHF"}, pricing.Charge{Amount: 1500, IsTaxable: true, IsNetPrice: true}},
	}
	paymentFees = []charge{
		{pricing.ChargeKey{ID: "invoice", Currency: "CHF"}, pricing.Charge{Amount: 200, IsTaxable: true}},
	}
)

func main() {
	enqueue := flag.Bool("enqueue-demo", false, "enqueue a recalculation of the demo order after seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	defer client.Close()

	catalogKey, deliveryKey, paymentKey := cfg.ChargeKeys()
	seed(ctx, logger, pricing.RedisCharges{R: client, Key: catalogKey}, catalog)
	seed(ctx, logger, pricing.RedisCharges{R: client, Key: deliveryKey}, deliveryFees)
	seed(ctx, logger, pricing.RedisCharges{R: client, Key: paymentKey}, paymentFees)

	if *enqueue {
		snap := recalc.OrderSnapshot{
			OrderID:            "demo-order",
			Currency:           "CHF",
			Country:            "CH",
			CustomerTags:       []string{"staff"},
			Positions:          []recalc.PositionInput{{ID: "p1", ProductID: "shirt", Quantity: 2}, {ID: "p2", ProductID: "socks", Quantity: 3}},
			DeliveryProviderID: "post",
			PaymentProviderID:  "invoice",
		}
		if err := recalc.Enqueue(ctx, queue.Enqueuer{R: client, Prefix: cfg.QueuePrefix}, snap); err != nil {
			logger.Fatal().Err(err).Msg("enqueue demo order")
		}
		logger.Info().Str("order_id", snap.OrderID).Msg("demo_recalculation_enqueued")
	}
	logger.Info().Msg("seeding_completed")
}

func seed(ctx context.Context, logger zerolog.Logger, store pricing.RedisCharges, charges []charge) {
	for _, c := range charges {
		if err := store.Set(ctx, c.key, c.charge); err != nil {
			logger.Fatal().Err(err).Str("hash", store.Key).Str("id", c.key.ID).Msg("seed charge")
		}
	}
	logger.Info().Str("hash", store.Key).Int("count", len(charges)).Msg("charges_seeded")
}
