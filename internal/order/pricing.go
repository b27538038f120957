// Package order prices a whole order from the sheets of its positions,
// delivery and payment, and allocates order level discounts.
package order

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/allocation"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Row categories of an order sheet.
const (
	CategoryItems     pricing.Category = "ITEMS"
	CategoryDiscounts pricing.Category = "DISCOUNTS"
	CategoryTaxes     pricing.Category = "TAXES"
	CategoryDelivery  pricing.Category = "DELIVERY"
	CategoryPayment   pricing.Category = "PAYMENT"
)

// Schema describes order sheets. Tax rows repeat tax that item and fee rows
// already contain, so they are excluded from the gross.
var Schema = pricing.Schema{
	Domain:           "order",
	TaxCategory:      CategoryTaxes,
	DiscountCategory: CategoryDiscounts,
	GrossExcludesTax: true,
}

// Position is the priced sheet of one order position.
type Position struct {
	ID    string         `validate:"required"`
	Sheet *pricing.Sheet `validate:"required"`
}

// Context is the input of an order registry run.
type Context struct {
	OrderID   string     `validate:"required"`
	Currency  string     `validate:"required,len=3"`
	Country   string     `validate:"required,len=2"`
	Positions []Position `validate:"dive"`
	Delivery  *pricing.Sheet
	Payment   *pricing.Sheet

	Discounts pricing.DiscountResolver `validate:"-"`
	// Applied is filled per adapter from Discounts.
	Applied []pricing.AppliedDiscount `validate:"-"`
}

// Validate implements pricing.Context.
func (c Context) Validate() error { return pricing.ValidateStruct(c) }

// CurrencyCode implements pricing.Context.
func (c Context) CurrencyCode() string { return c.Currency }

// SheetQuantity implements pricing.Context. An order sheet is never multiplied.
func (c Context) SheetQuantity() int { return 1 }

// ScopeFor implements pricing.Scoper.
func (c Context) ScopeFor(ctx context.Context, adapterKey string, calculation *pricing.Sheet) Context {
	c.Applied = nil
	if c.Discounts != nil {
		c.Applied = c.Discounts.ResolveDiscounts(ctx, adapterKey, calculation)
	}
	return c
}

// ItemShares returns one allocation share per position.
func (c Context) ItemShares() []allocation.Share {
	shares := make([]allocation.Share, 0, len(c.Positions))
	for _, p := range c.Positions {
		shares = append(shares, allocation.ShareOf(p.ID, p.Sheet))
	}
	return shares
}

// FeeShares returns the delivery and payment shares that exist.
func (c Context) FeeShares() []allocation.Share {
	var shares []allocation.Share
	if c.Delivery.IsValid() {
		shares = append(shares, allocation.ShareOf("delivery", c.Delivery))
	}
	if c.Payment.IsValid() {
		shares = append(shares, allocation.ShareOf("payment", c.Payment))
	}
	return shares
}

// Registry is the order pricing registry.
type Registry = pricing.Registry[Context]

// NewRegistry returns an empty order registry.
func NewRegistry() *Registry {
	return pricing.NewRegistry[Context](Schema)
}
