// Package product prices a quantity of one product in a currency and country.
package product

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Row categories of a product sheet.
const (
	CategoryItem     pricing.Category = "ITEM"
	CategoryDiscount pricing.Category = "DISCOUNT"
	CategoryTax      pricing.Category = "TAX"
)

// Schema describes product sheets.
var Schema = pricing.Schema{
	Domain:           "product",
	TaxCategory:      CategoryTax,
	DiscountCategory: CategoryDiscount,
}

// Context is the input of a product registry run.
type Context struct {
	ProductID string `validate:"required"`
	Quantity  int    `validate:"gte=1"`
	Currency  string `validate:"required,len=3"`
	Country   string `validate:"required,len=2"`

	Discounts pricing.DiscountResolver `validate:"-"`
	// Applied is filled per adapter from Discounts.
	Applied []pricing.AppliedDiscount `validate:"-"`
}

// Validate implements pricing.Context.
func (c Context) Validate() error { return pricing.ValidateStruct(c) }

// CurrencyCode implements pricing.Context.
func (c Context) CurrencyCode() string { return c.Currency }

// SheetQuantity implements pricing.Context.
func (c Context) SheetQuantity() int { return c.Quantity }

// ScopeFor implements pricing.Scoper.
func (c Context) ScopeFor(ctx context.Context, adapterKey string, calculation *pricing.Sheet) Context {
	c.Applied = nil
	if c.Discounts != nil {
		c.Applied = c.Discounts.ResolveDiscounts(ctx, adapterKey, calculation)
	}
	return c
}

// Registry is the product pricing registry.
type Registry = pricing.Registry[Context]

// NewRegistry returns an empty product registry.
func NewRegistry() *Registry {
	return pricing.NewRegistry[Context](Schema)
}
