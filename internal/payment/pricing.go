// Package payment prices the payment of an order.
package payment

import "github.com/noah-isme/toko-pricing/internal/pricing"

// Row categories of a payment sheet.
const (
	CategoryPayment  pricing.Category = "PAYMENT"
	CategoryDiscount pricing.Category = "DISCOUNT"
	CategoryTax      pricing.Category = "TAX"
)

// Schema describes payment sheets.
var Schema = pricing.Schema{
	Domain:           "payment",
	TaxCategory:      CategoryTax,
	DiscountCategory: CategoryDiscount,
}

// Context is the input of a payment registry run.
type Context struct {
	OrderID    string `validate:"required"`
	ProviderID string `validate:"required"`
	Currency   string `validate:"required,len=3"`
	Country    string `validate:"required,len=2"`
}

// Validate implements pricing.Context.
func (c Context) Validate() error { return pricing.ValidateStruct(c) }

// CurrencyCode implements pricing.Context.
func (c Context) CurrencyCode() string { return c.Currency }

// SheetQuantity implements pricing.Context. A payment is priced once per order.
func (c Context) SheetQuantity() int { return 1 }

// Registry is the payment pricing registry.
type Registry = pricing.Registry[Context]

// NewRegistry returns an empty payment registry.
func NewRegistry() *Registry {
	return pricing.NewRegistry[Context](Schema)
}
