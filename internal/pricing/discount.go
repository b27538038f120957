package pricing

import (
	"context"
	"time"
)

// DiscountConfiguration is the deduction a discount asks one pricing adapter
// to apply: either a fraction of a base amount or an absolute cap in minor units.
type DiscountConfiguration struct {
	Rate       *float64 `json:"rate,omitempty"`
	FixedRate  *int64   `json:"fixedRate,omitempty"`
	IsNetPrice bool     `json:"isNetPrice,omitempty"`
}

// IsZero reports whether the configuration deducts nothing.
func (c DiscountConfiguration) IsZero() bool {
	return (c.Rate == nil || *c.Rate == 0) && (c.FixedRate == nil || *c.FixedRate == 0)
}

// RateOf builds a rate configuration.
func RateOf(rate float64) DiscountConfiguration {
	return DiscountConfiguration{Rate: &rate}
}

// FixedOf builds a fixed amount configuration.
func FixedOf(amount int64) DiscountConfiguration {
	return DiscountConfiguration{FixedRate: &amount}
}

// AppliedDiscount is an attached discount together with the configuration
// resolved for the adapter currently calculating.
type AppliedDiscount struct {
	DiscountID    string
	DiscountKey   string
	Created       time.Time
	Configuration DiscountConfiguration
}

// DiscountResolver returns the attached discounts that configure the given
// adapter, oldest first. Discounts that do not affect the adapter are omitted.
type DiscountResolver interface {
	ResolveDiscounts(ctx context.Context, adapterKey string, calculation *Sheet) []AppliedDiscount
}

// ResolverFunc adapts a function to DiscountResolver.
type ResolverFunc func(ctx context.Context, adapterKey string, calculation *Sheet) []AppliedDiscount

// ResolveDiscounts implements DiscountResolver.
func (f ResolverFunc) ResolveDiscounts(ctx context.Context, adapterKey string, calculation *Sheet) []AppliedDiscount {
	return f(ctx, adapterKey, calculation)
}
