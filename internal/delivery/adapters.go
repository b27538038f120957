package delivery

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Adapter keys.
const (
	KeyProviderFee   = "delivery-provider-fee"
	KeyFreeThreshold = "delivery-free-threshold"
	KeyVAT           = "delivery-vat"
)

// ProviderFee emits the fee configured for the delivery provider.
type ProviderFee struct {
	pricing.Descriptor
	Fees pricing.ChargeSource
}

// NewProviderFee creates the delivery fee adapter.
func NewProviderFee(fees pricing.ChargeSource) *ProviderFee {
	return &ProviderFee{
		Descriptor: pricing.Descriptor{AdapterKey: KeyProviderFee, AdapterLabel: "Delivery fee", AdapterVersion: "1.0.0", Index: 0},
		Fees:       fees,
	}
}

func (a *ProviderFee) IsActivatedFor(Context) bool { return a.Fees != nil }

func (a *ProviderFee) Calculate(ctx context.Context, pctx Context, _ []pricing.Row) ([]pricing.Row, error) {
	fee, err := a.Fees.Charge(ctx, pctx.ProviderID, pctx.Currency, pctx.Country)
	if err != nil {
		return nil, err
	}
	if fee.Amount == 0 {
		return nil, nil
	}
	return []pricing.Row{{
		Category:   CategoryDelivery,
		Amount:     fee.Amount,
		IsTaxable:  fee.IsTaxable,
		IsNetPrice: fee.IsNetPrice,
	}}, nil
}

// FreeThreshold waives the delivery fee once the order items reach Threshold
// by adding a negative DELIVERY row for every fee row.
type FreeThreshold struct {
	pricing.Descriptor
	Threshold int64
}

// NewFreeThreshold creates the free delivery adapter. A zero threshold
// never activates.
func NewFreeThreshold(threshold int64) *FreeThreshold {
	return &FreeThreshold{
		Descriptor: pricing.Descriptor{AdapterKey: KeyFreeThreshold, AdapterLabel: "Free delivery", AdapterVersion: "1.0.0", Index: 10},
		Threshold:  threshold,
	}
}

func (a *FreeThreshold) IsActivatedFor(pctx Context) bool {
	return a.Threshold > 0 && pctx.ItemsTotal >= a.Threshold
}

func (a *FreeThreshold) Calculate(_ context.Context, _ Context, prior []pricing.Row) ([]pricing.Row, error) {
	var rows []pricing.Row
	for _, r := range prior {
		if r.Category != CategoryDelivery || r.Amount == 0 {
			continue
		}
		rows = append(rows, pricing.Row{
			Category:   CategoryDelivery,
			Amount:     -r.Amount,
			IsTaxable:  r.IsTaxable,
			IsNetPrice: r.IsNetPrice,
			Meta:       map[string]any{"threshold": a.Threshold},
		})
	}
	return rows, nil
}

// VAT adds tax for the taxable fee and discount rows. A waived fee nets its
// tax to zero.
type VAT struct {
	pricing.Descriptor
	Rates pricing.TaxRates
}

// NewVAT creates the delivery VAT adapter.
func NewVAT(rates pricing.TaxRates) *VAT {
	return &VAT{
		Descriptor: pricing.Descriptor{AdapterKey: KeyVAT, AdapterLabel: "Value added tax", AdapterVersion: "1.0.0", Index: 100},
		Rates:      rates,
	}
}

func (a *VAT) IsActivatedFor(pctx Context) bool {
	_, ok := a.Rates.Rate(pctx.Country)
	return ok
}

func (a *VAT) Calculate(_ context.Context, pctx Context, prior []pricing.Row) ([]pricing.Row, error) {
	rate, _ := a.Rates.Rate(pctx.Country)
	return pricing.ApplyTax(prior, rate, CategoryTax, CategoryDelivery, CategoryDiscount), nil
}

// NewDefaultRegistry wires the built-in delivery adapters. A threshold of
// zero disables free delivery.
func NewDefaultRegistry(fees pricing.ChargeSource, rates pricing.TaxRates, freeThreshold int64) *Registry {
	return NewRegistry().MustRegister(NewProviderFee(fees), NewFreeThreshold(freeThreshold), NewVAT(rates))
}
