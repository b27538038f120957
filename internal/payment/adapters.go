package payment

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Adapter keys.
const (
	KeyProviderFee = "payment-provider-fee"
	KeyVAT         = "payment-vat"
)

// ProviderFee emits the surcharge of the payment provider, if any.
type ProviderFee struct {
	pricing.Descriptor
	Fees pricing.ChargeSource
}

// NewProviderFee creates the payment fee adapter.
func NewProviderFee(fees pricing.ChargeSource) *ProviderFee {
	return &ProviderFee{
		Descriptor: pricing.Descriptor{AdapterKey: KeyProviderFee, AdapterLabel: "Payment fee", AdapterVersion: "1.0.0", Index: 0},
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
		Category:   CategoryPayment,
		Amount:     fee.Amount,
		IsTaxable:  fee.IsTaxable,
		IsNetPrice: fee.IsNetPrice,
	}}, nil
}

// VAT adds tax for the taxable fee rows.
type VAT struct {
	pricing.Descriptor
	Rates pricing.TaxRates
}

// NewVAT creates the payment VAT adapter.
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
	return pricing.ApplyTax(prior, rate, CategoryTax, CategoryPayment, CategoryDiscount), nil
}

// NewDefaultRegistry wires the built-in payment adapters.
func NewDefaultRegistry(fees pricing.ChargeSource, rates pricing.TaxRates) *Registry {
	return NewRegistry().MustRegister(NewProviderFee(fees), NewVAT(rates))
}
