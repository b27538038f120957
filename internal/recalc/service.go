// Package recalc recalculates every pricing sheet of an order: positions,
// delivery, payment and finally the order itself.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pricing/internal/delivery"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/order"
	"github.com/noah-isme/toko-pricing/internal/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/product"
)

const tracerName = "github.com/noah-isme/toko-pricing/internal/recalc"

// ErrNotConfigured is returned when a required registry is missing.
var ErrNotConfigured = errors.New("recalc: service not configured")

// Locker serializes work per name.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(context.Context) error) error
}

// PositionInput is one order position to price.
type PositionInput struct {
	ID        string `json:"id" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// OrderSnapshot is the order state a recalculation works on.
type OrderSnapshot struct {
	OrderID            string          `json:"orderId" validate:"required"`
	Currency           string          `json:"currencyCode" validate:"required,len=3"`
	Country            string          `json:"countryCode" validate:"required,len=2"`
	CustomerID         string          `json:"customerId,omitempty"`
	CustomerTags       []string        `json:"customerTags,omitempty"`
	Positions          []PositionInput `json:"positions" validate:"dive"`
	DeliveryProviderID string          `json:"deliveryProviderId,omitempty"`
	PaymentProviderID  string          `json:"paymentProviderId,omitempty"`
}

// Result carries every sheet produced for the order.
type Result struct {
	OrderID   string
	Positions []order.Position
	Delivery  *pricing.Sheet
	Payment   *pricing.Sheet
	Order     *pricing.Sheet
	Discounts []discount.Discount
	Summary   order.Summary
}

// Service recalculates orders. Discounts, Cache, Events and Locker are optional.
type Service struct {
	Locker     Locker
	Discounts  *discount.Manager
	Products   *product.Registry
	Deliveries *delivery.Registry
	Payments   *payment.Registry
	Orders     *order.Registry
	Cache      *pricing.Cache
	Events     *events.Bus
	// SkipReconcile prices with the attached discounts as they are.
	SkipReconcile bool
}

// Recalculate prices the order under its lock. A precondition fault in any
// registry aborts the call; cache and event failures are only logged.
func (s *Service) Recalculate(ctx context.Context, snap OrderSnapshot) (Result, error) {
	if s == nil || s.Products == nil || s.Orders == nil {
		return Result{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "recalc.order")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", snap.OrderID))

	if err := pricing.ValidateStruct(snap); err != nil {
		obs.CountRecalculation("invalid")
		span.SetStatus(codes.Error, "invalid snapshot")
		return Result{}, fmt.Errorf("%w: order snapshot: %w", pricing.ErrInvalidContext, err)
	}

	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.recalculate(ctx, snap)
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, "order:"+snap.OrderID, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.CountRecalculation("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "recalculation failed")
		s.emit(ctx, events.TopicOrderRecalculationFailed, snap.OrderID, map[string]string{"error": err.Error()})
		return Result{}, err
	}
	obs.CountRecalculation("ok")

	s.store(ctx, res)
	s.emit(ctx, events.TopicOrderRecalculated, res.OrderID, res.Summary)
	zerolog.Ctx(ctx).Info().
		Str("order_id", res.OrderID).
		Int64("total", res.Summary.Total).
		Int("discounts", len(res.Discounts)).
		Msg("order_recalculated")
	return res, nil
}

func (s *Service) recalculate(ctx context.Context, snap OrderSnapshot) (Result, error) {
	res := Result{OrderID: snap.OrderID}
	dctx := discount.Context{
		OrderID:      snap.OrderID,
		CustomerID:   snap.CustomerID,
		CustomerTags: snap.CustomerTags,
		Currency:     snap.Currency,
		Country:      snap.Country,
	}

	var before []discount.Discount
	if s.Discounts != nil {
		var err error
		if before, err = s.Discounts.List(ctx, snap.OrderID); err != nil {
			return Result{}, fmt.Errorf("recalc: list discounts: %w", err)
		}
	}
	current := before

	// Discount preconditions are checked against the undiscounted items total
	// so a discount never invalidates itself.
	positions, err := s.pricePositions(ctx, snap, nil)
	if err != nil {
		return Result{}, err
	}
	dctx.ItemsTotal = itemsTotal(positions)

	if s.Discounts != nil && !s.SkipReconcile {
		if current, err = s.Discounts.Reconcile(ctx, dctx); err != nil {
			return Result{}, fmt.Errorf("recalc: reconcile discounts: %w", err)
		}
		for _, d := range detached(before, current) {
			s.emit(ctx, events.TopicDiscountDetached, snap.OrderID, d)
		}
	}
	if resolver := s.resolver(dctx, current); resolver != nil {
		if positions, err = s.pricePositions(ctx, snap, resolver); err != nil {
			return Result{}, err
		}
	}
	res.Positions = positions
	res.Discounts = current

	if snap.DeliveryProviderID != "" && s.Deliveries != nil {
		res.Delivery, err = s.Deliveries.Run(ctx, delivery.Context{
			OrderID:    snap.OrderID,
			ProviderID: snap.DeliveryProviderID,
			Currency:   snap.Currency,
			Country:    snap.Country,
			ItemsTotal: dctx.ItemsTotal,
		})
		if err != nil {
			return Result{}, err
		}
	}
	if snap.PaymentProviderID != "" && s.Payments != nil {
		res.Payment, err = s.Payments.Run(ctx, payment.Context{
			OrderID:    snap.OrderID,
			ProviderID: snap.PaymentProviderID,
			Currency:   snap.Currency,
			Country:    snap.Country,
		})
		if err != nil {
			return Result{}, err
		}
	}

	res.Order, err = s.Orders.Run(ctx, order.Context{
		OrderID:   snap.OrderID,
		Currency:  snap.Currency,
		Country:   snap.Country,
		Positions: positions,
		Delivery:  res.Delivery,
		Payment:   res.Payment,
		Discounts: s.resolver(dctx, current),
	})
	if err != nil {
		return Result{}, err
	}
	res.Summary = order.Summarize(res.Order)
	return res, nil
}

func (s *Service) pricePositions(ctx context.Context, snap OrderSnapshot, resolver pricing.DiscountResolver) ([]order.Position, error) {
	positions := make([]order.Position, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		sheet, err := s.Products.Run(ctx, product.Context{
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
			Currency:  snap.Currency,
			Country:   snap.Country,
			Discounts: resolver,
		})
		if err != nil {
			return nil, fmt.Errorf("recalc: position %s: %w", p.ID, err)
		}
		positions = append(positions, order.Position{ID: p.ID, Sheet: sheet})
	}
	return positions, nil
}

func (s *Service) resolver(dctx discount.Context, discounts []discount.Discount) pricing.DiscountResolver {
	if s.Discounts == nil || s.Discounts.Director == nil || len(discounts) == 0 {
		return nil
	}
	return s.Discounts.Director.Resolver(dctx, discounts)
}

func (s *Service) store(ctx context.Context, res Result) {
	if s.Cache == nil {
		return
	}
	sheets := map[string]*pricing.Sheet{pricing.OrderKey(res.OrderID): res.Order}
	for _, p := range res.Positions {
		sheets[pricing.OrderKey(res.OrderID, "position", p.ID)] = p.Sheet
	}
	if res.Delivery != nil {
		sheets[pricing.OrderKey(res.OrderID, "delivery")] = res.Delivery
	}
	if res.Payment != nil {
		sheets[pricing.OrderKey(res.OrderID, "payment")] = res.Payment
	}
	for key, sheet := range sheets {
		if err := s.Cache.Put(ctx, key, sheet); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("pricing_cache_put_failed")
		}
	}
}

func (s *Service) emit(ctx context.Context, topic, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, orderID, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Str("order_id", orderID).Msg("event_emit_failed")
	}
}

func itemsTotal(positions []order.Position) int64 {
	var total int64
	for _, p := range positions {
		total += p.Sheet.Gross()
	}
	return total
}

func discountIDs(discounts []discount.Discount) []string {
	ids := make([]string, 0, len(discounts))
	for _, d := range discounts {
		ids = append(ids, d.ID)
	}
	slices.Sort(ids)
	return ids
}

func detached(before, after []discount.Discount) []discount.Discount {
	kept := discountIDs(after)
	var out []discount.Discount
	for _, d := range before {
		if _, found := slices.BinarySearch(kept, d.ID); !found {
			out = append(out, d)
		}
	}
	return out
}
