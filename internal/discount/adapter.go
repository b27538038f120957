package discount

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Adapter is one discount scheme.
type Adapter interface {
	Key() string
	Label() string
	Version() string
	OrderIndex() int

	IsManualAdditionAllowed() bool
	IsManualRemovalAllowed() bool
	IsValidForSystemTriggering(ctx context.Context, dctx Context) bool
	IsValidForCodeTriggering(ctx context.Context, dctx Context, code string) bool
	// DiscountForPricingAdapterKey returns the deduction for the named pricing
	// adapter, or false when the scheme does not affect it.
	DiscountForPricingAdapterKey(ctx context.Context, dctx Context, pricingAdapterKey string, calculation *pricing.Sheet) (pricing.DiscountConfiguration, bool)
}

// Director is the registry of discount adapters.
type Director struct {
	adapters map[string]Adapter
}

// NewDirector returns an empty director.
func NewDirector() *Director {
	return &Director{adapters: make(map[string]Adapter)}
}

// Register adds a discount adapter.
func (d *Director) Register(adapter Adapter) error {
	if adapter == nil || strings.TrimSpace(adapter.Key()) == "" {
		return fmt.Errorf("%w: empty key", pricing.ErrInvalidAdapter)
	}
	if _, exists := d.adapters[adapter.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapterKey, adapter.Key())
	}
	d.adapters[adapter.Key()] = adapter
	return nil
}

// MustRegister registers adapters and panics on error.
func (d *Director) MustRegister(adapters ...Adapter) *Director {
	for _, a := range adapters {
		if err := d.Register(a); err != nil {
			panic(err)
		}
	}
	return d
}

// Adapter returns the adapter registered for key.
func (d *Director) Adapter(key string) (Adapter, bool) {
	a, ok := d.adapters[key]
	return a, ok
}

// Adapters returns all adapters by order index, then key.
func (d *Director) Adapters() []Adapter {
	out := lo.Values(d.adapters)
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex() != out[j].OrderIndex() {
			return out[i].OrderIndex() < out[j].OrderIndex()
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// ResolveForCode returns the first adapter that accepts code.
func (d *Director) ResolveForCode(ctx context.Context, dctx Context, code string) (Adapter, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, false
	}
	return lo.Find(d.Adapters(), func(a Adapter) bool {
		return a.IsValidForCodeTriggering(ctx, dctx, code)
	})
}

// Resolver binds the discounts of one order to the director so pricing
// contexts can scope them per adapter.
func (d *Director) Resolver(dctx Context, discounts []Discount) pricing.DiscountResolver {
	sorted := slices.Clone(discounts)
	SortByCreation(sorted)
	return resolver{director: d, dctx: dctx, discounts: sorted}
}

type resolver struct {
	director  *Director
	dctx      Context
	discounts []Discount
}

func (r resolver) ResolveDiscounts(ctx context.Context, adapterKey string, calculation *pricing.Sheet) []pricing.AppliedDiscount {
	var applied []pricing.AppliedDiscount
	for _, d := range r.discounts {
		adapter, ok := r.director.Adapter(d.DiscountKey)
		if !ok {
			continue
		}
		cfg, ok := adapter.DiscountForPricingAdapterKey(ctx, r.dctx, adapterKey, calculation)
		if !ok || cfg.IsZero() {
			continue
		}
		applied = append(applied, pricing.AppliedDiscount{
			DiscountID:    d.ID,
			DiscountKey:   d.DiscountKey,
			Created:       d.Created,
			Configuration: cfg,
		})
	}
	return applied
}
