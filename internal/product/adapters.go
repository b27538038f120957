package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Adapter keys.
const (
	KeyCatalogPrice = "product-catalog-price"
	KeyDiscount     = "product-discount"
	KeyVAT          = "product-vat"
)

// CatalogPrice emits the list price times quantity.
type CatalogPrice struct {
	pricing.Descriptor
	Prices pricing.ChargeSource
}

// NewCatalogPrice creates the list price adapter.
func NewCatalogPrice(prices pricing.ChargeSource) *CatalogPrice {
	return &CatalogPrice{
		Descriptor: pricing.Descriptor{AdapterKey: KeyCatalogPrice, AdapterLabel: "Catalog price", AdapterVersion: "1.0.0", Index: 0},
		Prices:     prices,
	}
}

func (a *CatalogPrice) IsActivatedFor(Context) bool { return a.Prices != nil }

func (a *CatalogPrice) Calculate(ctx context.Context, pctx Context, _ []pricing.Row) ([]pricing.Row, error) {
	price, err := a.Prices.Charge(ctx, pctx.ProductID, pctx.Currency, pctx.Country)
	if err != nil {
		return nil, err
	}
	return []pricing.Row{{
		Category:   CategoryItem,
		Amount:     price.Amount * int64(pctx.Quantity),
		IsTaxable:  price.IsTaxable,
		IsNetPrice: price.IsNetPrice,
	}}, nil
}

// Discount applies the discounts configured for this adapter to the item
// rows. The emitted rows are taxable so that the VAT adapter reduces tax too.
type Discount struct {
	pricing.Descriptor
}

// NewDiscount creates the product discount adapter.
func NewDiscount() *Discount {
	return &Discount{Descriptor: pricing.Descriptor{AdapterKey: KeyDiscount, AdapterLabel: "Product discount", AdapterVersion: "1.0.0", Index: 10}}
}

func (a *Discount) IsActivatedFor(pctx Context) bool { return len(pctx.Applied) > 0 }

func (a *Discount) Calculate(_ context.Context, pctx Context, prior []pricing.Row) ([]pricing.Row, error) {
	sheet := pricing.NewSheet(Schema, pctx.Currency, pctx.Quantity, prior)
	items := sheet.FilterBy(pricing.Filter{Category: CategoryItem})
	if len(items) == 0 {
		return nil, nil
	}
	base := sheet.Sum(pricing.Filter{Category: CategoryItem})
	isNet := items[0].IsNetPrice
	taxable := items[0].IsTaxable

	left := base
	var rows []pricing.Row
	for _, d := range pctx.Applied {
		var amount int64
		switch cfg := d.Configuration; {
		case cfg.Rate != nil:
			amount = pricing.Round(decimal.NewFromInt(base).Mul(decimal.NewFromFloat(*cfg.Rate)))
		case cfg.FixedRate != nil:
			amount = *cfg.FixedRate * int64(pctx.Quantity)
		}
		amount = max(0, min(amount, left))
		if amount == 0 {
			continue
		}
		left -= amount
		rows = append(rows, pricing.Row{
			Category:   CategoryDiscount,
			Amount:     -amount,
			IsTaxable:  taxable,
			IsNetPrice: isNet,
			DiscountID: d.DiscountID,
		})
	}
	return rows, nil
}

// VAT adds tax for the taxable item and discount rows.
type VAT struct {
	pricing.Descriptor
	Rates pricing.TaxRates
}

// NewVAT creates the product VAT adapter.
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
	return pricing.ApplyTax(prior, rate, CategoryTax, CategoryItem, CategoryDiscount), nil
}

// NewDefaultRegistry wires the built-in product adapters.
func NewDefaultRegistry(prices pricing.ChargeSource, rates pricing.TaxRates) *Registry {
	return NewRegistry().MustRegister(NewCatalogPrice(prices), NewDiscount(), NewVAT(rates))
}
