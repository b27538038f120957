package recalc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/delivery"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/order"
	"github.com/noah-isme/toko-pricing/internal/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/product"
	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/recalc"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

type fixture struct {
	svc     *recalc.Service
	client  *redis.Client
	store   events.RedisStreamStore
	manager *discount.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rates := pricing.TaxRates{"CH": 0.081}
	prices := pricing.ChargeTable{
		{ID: "shirt", Currency: "CHF"}: {Amount: 2000, IsTaxable: true},
	}
	fees := pricing.ChargeTable{
		{ID: "post", Currency: "CHF"}: {Amount: 900, IsTaxable: true},
	}

	director := discount.NewDirector().MustRegister(&discount.TagRate{
		Descriptor:         pricing.Descriptor{AdapterKey: "vip", Index: 10},
		Tag:                "vip",
		Rate:               0.1,
		PricingAdapterKeys: []string{order.KeyDiscount},
	})
	manager := &discount.Manager{Director: director, Store: discount.NewRedisStore(client, "test:")}
	stream := events.RedisStreamStore{R: client, Stream: "test:events"}

	svc := &recalc.Service{
		Locker:     lock.Locker{R: client, Prefix: "test", TTL: time.Second, RetryBackoff: time.Millisecond},
		Discounts:  manager,
		Products:   product.NewDefaultRegistry(prices, rates),
		Deliveries: delivery.NewDefaultRegistry(fees, rates, 5000),
		Payments:   payment.NewDefaultRegistry(nil, rates),
		Orders:     order.NewDefaultRegistry(),
		Cache:      pricing.NewCache(client, time.Minute),
		Events:     &events.Bus{Store: stream},
	}
	return fixture{svc: svc, client: client, store: stream, manager: manager}
}

func snapshot(tags ...string) recalc.OrderSnapshot {
	return recalc.OrderSnapshot{
		OrderID:            "o-1",
		Currency:           "CHF",
		Country:            "CH",
		CustomerTags:       tags,
		Positions:          []recalc.PositionInput{{ID: "p1", ProductID: "shirt", Quantity: 1}},
		DeliveryProviderID: "post",
	}
}

func TestRecalculateWithoutDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Recalculate(ctx, snapshot())
	require.NoError(t, err)
	require.Empty(t, res.Discounts)
	require.Nil(t, res.Payment)
	require.Equal(t, order.Summary{
		Items:    2000,
		Taxes:    217,
		Delivery: 900,
		Total:    2900,
		Net:      2683,
		Currency: "CHF",
	}, res.Summary)

	cached, ok, err := f.svc.Cache.Get(ctx, pricing.OrderKey("o-1"), order.Schema)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2900), cached.Gross())

	position, ok, err := f.svc.Cache.Get(ctx, pricing.OrderKey("o-1", "position", "p1"), product.Schema)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(150), position.TaxSum())
}

func TestRecalculateAttachesAndDetachesSystemDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Recalculate(ctx, snapshot("vip"))
	require.NoError(t, err)
	require.Len(t, res.Discounts, 1)
	require.Equal(t, discount.TriggerSystem, res.Discounts[0].Trigger)
	require.Equal(t, order.Summary{
		Items:     2000,
		Discounts: -290,
		Taxes:     195,
		Delivery:  900,
		Total:     2610,
		Net:       2415,
		Currency:  "CHF",
	}, res.Summary)
	require.Equal(t, []pricing.DiscountPrice{{DiscountID: res.Discounts[0].ID, Amount: -290, Currency: "CHF"}}, res.Order.DiscountPrices())

	// recalculating is idempotent
	again, err := f.svc.Recalculate(ctx, snapshot("vip"))
	require.NoError(t, err)
	require.Equal(t, res.Summary, again.Summary)
	require.Len(t, again.Discounts, 1)
	require.Equal(t, res.Discounts[0].ID, again.Discounts[0].ID)

	dropped, err := f.svc.Recalculate(ctx, snapshot())
	require.NoError(t, err)
	require.Empty(t, dropped.Discounts)
	require.Equal(t, int64(2900), dropped.Summary.Total)

	attached, err := f.manager.List(ctx, "o-1")
	require.NoError(t, err)
	require.Empty(t, attached)

	recent, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	topics := make([]string, 0, len(recent))
	for _, ev := range recent {
		topics = append(topics, ev.Topic)
	}
	require.Equal(t, []string{
		events.TopicOrderRecalculated,
		events.TopicOrderRecalculated,
		events.TopicDiscountDetached,
		events.TopicOrderRecalculated,
	}, topics)

	var summary order.Summary
	require.NoError(t, json.Unmarshal(recent[3].Payload, &summary))
	require.Equal(t, int64(2900), summary.Total)
}

func TestRecalculateKeepsCodeWhoseMinimumItsOwnDeductionUndercuts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.manager.Director.MustRegister(&discount.FixedAmountCode{
		Descriptor:         pricing.Descriptor{AdapterKey: "ten-off", Index: 20},
		Code:               "TENOFF",
		Amount:             500,
		Currency:           "CHF",
		MinItemsTotal:      2000,
		PricingAdapterKeys: []string{product.KeyDiscount},
	})

	redeemed, err := f.manager.RedeemCode(ctx, discount.Context{OrderID: "o-1", Currency: "CHF", Country: "CH", ItemsTotal: 2000}, "tenoff")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := f.svc.Recalculate(ctx, snapshot())
		require.NoError(t, err)
		require.Len(t, res.Discounts, 1)
		require.Equal(t, redeemed.ID, res.Discounts[0].ID)
		require.Equal(t, int64(1500), res.Positions[0].Sheet.Gross())
		require.Equal(t, int64(2400), res.Summary.Total)
	}

	// a real order change still drops the code
	smaller := snapshot()
	smaller.Positions = nil
	res, err := f.svc.Recalculate(ctx, smaller)
	require.NoError(t, err)
	require.Empty(t, res.Discounts)
}

func TestRecalculateWithUnknownPaymentProviderKeepsPricing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	settings := resilience.Settings{MinRequests: 10, FailureRatio: 0.5, OpenFor: time.Minute}
	catalogBreaker := resilience.NewBreaker("catalog", settings)
	paymentBreaker := resilience.NewBreaker("payment-fees", settings)

	prices := pricing.ChargeTable{{ID: "shirt", Currency: "CHF"}: {Amount: 2000, IsTaxable: true}}
	paymentFees := pricing.ChargeTable{{ID: "card", Currency: "CHF"}: {Amount: 100, IsTaxable: true}}
	rates := pricing.TaxRates{"CH": 0.081}
	f.svc.Products = product.NewRegistry().MustRegister(
		pricing.Guard[product.Context](product.NewCatalogPrice(prices), catalogBreaker),
		product.NewDiscount(),
		product.NewVAT(rates),
	)
	f.svc.Payments = payment.NewRegistry().MustRegister(
		pricing.Guard[payment.Context](payment.NewProviderFee(paymentFees), paymentBreaker),
		payment.NewVAT(rates),
	)

	snap := snapshot()
	snap.PaymentProviderID = "cash"
	for i := 0; i < 15; i++ {
		res, err := f.svc.Recalculate(ctx, snap)
		require.NoError(t, err)
		require.Equal(t, int64(2900), res.Summary.Total)
		require.Zero(t, res.Summary.Payment)
	}
	require.Equal(t, resilience.Closed, catalogBreaker.State())
	require.Equal(t, resilience.Closed, paymentBreaker.State())
}

func TestRecalculateRejectsInvalidSnapshot(t *testing.T) {
	f := newFixture(t)
	snap := snapshot()
	snap.Currency = ""

	_, err := f.svc.Recalculate(context.Background(), snap)
	require.ErrorIs(t, err, pricing.ErrInvalidContext)

	var nilService *recalc.Service
	_, err = nilService.Recalculate(context.Background(), snapshot())
	require.ErrorIs(t, err, recalc.ErrNotConfigured)
}

func TestRecalculateUnknownProductKeepsGoing(t *testing.T) {
	f := newFixture(t)
	snap := snapshot()
	snap.Positions = append(snap.Positions, recalc.PositionInput{ID: "p2", ProductID: "ghost", Quantity: 2})

	res, err := f.svc.Recalculate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)
	require.False(t, res.Positions[1].Sheet.IsValid())
	require.Equal(t, int64(2900), res.Summary.Total)
}

func TestTaskHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handler := recalc.TaskHandler{Service: f.svc}

	enq := queue.Enqueuer{R: f.client, Prefix: "test"}
	require.NoError(t, recalc.Enqueue(ctx, enq, snapshot("vip")))
	ready, _, err := enq.Depth(ctx, queue.KindOrderRecalculate)
	require.NoError(t, err)
	require.Equal(t, int64(1), ready)

	payload, err := json.Marshal(snapshot("vip"))
	require.NoError(t, err)
	require.NoError(t, handler.Handle(ctx, queue.Task{Kind: queue.KindOrderRecalculate, Payload: payload}))

	cached, ok, err := f.svc.Cache.Get(ctx, pricing.OrderKey("o-1"), order.Schema)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2610), cached.Gross())

	require.ErrorIs(t, handler.Handle(ctx, queue.Task{Kind: "other", Payload: payload}), queue.ErrInvalidKind)
	require.Error(t, handler.Handle(ctx, queue.Task{Kind: queue.KindOrderRecalculate, Payload: []byte("{")}))
}
