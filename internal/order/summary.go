package order

import "github.com/noah-isme/toko-pricing/internal/pricing"

// Summary aggregates an order sheet per category, in minor units.
type Summary struct {
	Items     int64  `json:"items"`
	Discounts int64  `json:"discounts"`
	Taxes     int64  `json:"taxes"`
	Delivery  int64  `json:"delivery"`
	Payment   int64  `json:"payment"`
	Total     int64  `json:"total"`
	Net       int64  `json:"net"`
	Currency  string `json:"currencyCode"`
}

// Summarize computes the receipt totals of an order sheet.
func Summarize(sheet *pricing.Sheet) Summary {
	return Summary{
		Items:     sheet.Sum(pricing.Filter{Category: CategoryItems}),
		Discounts: sheet.Sum(pricing.Filter{Category: CategoryDiscounts}),
		Taxes:     sheet.TaxSum(),
		Delivery:  sheet.Sum(pricing.Filter{Category: CategoryDelivery}),
		Payment:   sheet.Sum(pricing.Filter{Category: CategoryPayment}),
		Total:     sheet.Gross(),
		Net:       sheet.Net(),
		Currency:  sheet.Currency(),
	}
}
