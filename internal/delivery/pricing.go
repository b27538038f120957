// Package delivery prices the delivery of an order.
package delivery

import "github.com/noah-isme/toko-pricing/internal/pricing"

// Row categories of a delivery sheet.
const (
	CategoryDelivery pricing.Category = "DELIVERY"
	CategoryDiscount pricing.Category = "DISCOUNT"
	CategoryTax      pricing.Category = "TAX"
)

// Schema describes delivery sheets.
var Schema = pricing.Schema{
	Domain:           "delivery",
	TaxCategory:      CategoryTax,
	DiscountCategory: CategoryDiscount,
}

// Context is the input of a delivery registry run.
type Context struct {
	OrderID    string `validate:"required"`
	ProviderID string `validate:"required"`
	Currency   string `validate:"required,len=3"`
	Country    string `validate:"required,len=2"`
	// ItemsTotal is the undiscounted gross of the order positions.
	ItemsTotal int64
}

// Validate implements pricing.Context.
func (c Context) Validate() error { return pricing.ValidateStruct(c) }

// CurrencyCode implements pricing.Context.
func (c Context) CurrencyCode() string { return c.Currency }

// SheetQuantity implements pricing.Context. A delivery is priced once per order.
func (c Context) SheetQuantity() int { return 1 }

// Registry is the delivery pricing registry.
type Registry = pricing.Registry[Context]

// NewRegistry returns an empty delivery registry.
func NewRegistry() *Registry {
	return pricing.NewRegistry[Context](Schema)
}
