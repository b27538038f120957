// Package allocation splits order-level discounts across independent value
// pools (positions, delivery fee, payment fee) and backs out the tax embedded
// in each pool.
//
// All arithmetic runs on decimals; amounts are rounded to minor units half
// away from zero only once per distribution. Degenerate shares never divide
// by zero: their ratio or tax divisor is zero and they receive nothing.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Share is one value pool: the gross and tax of a sub-sheet.
type Share struct {
	Key   string
	Gross int64
	Tax   int64
}

// ShareOf builds a share from a sub-sheet.
func ShareOf(key string, sheet *pricing.Sheet) Share {
	return Share{Key: key, Gross: sheet.Gross(), Tax: sheet.TaxSum()}
}

// Total sums the gross of the shares.
func Total(shares []Share) int64 {
	var total int64
	for _, s := range shares {
		total += s.Gross
	}
	return total
}

// Ratio is share.Gross / total, zero when total is zero.
func Ratio(s Share, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(s.Gross).Div(decimal.NewFromInt(total))
}

// TaxDivisor is gross / (gross - tax), zero when the share holds no net value.
func TaxDivisor(s Share) decimal.Decimal {
	net := s.Gross - s.Tax
	if net == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(s.Gross).Div(decimal.NewFromInt(net))
}

// Split is the rounded outcome of one distribution.
type Split struct {
	Amount int64
	Tax    int64
}

// Distribute spreads amount over the shares by their gross ratio to total and
// returns the distributed amount together with the tax contained in it.
func Distribute(amount decimal.Decimal, shares []Share, total int64) Split {
	if amount.IsZero() || total == 0 {
		return Split{}
	}
	sumAmount := decimal.Zero
	sumTax := decimal.Zero
	for _, s := range shares {
		part := amount.Mul(Ratio(s, total))
		sumAmount = sumAmount.Add(part)
		if divisor := TaxDivisor(s); !divisor.IsZero() {
			sumTax = sumTax.Add(part.Sub(part.Div(divisor)))
		}
	}
	return Split{Amount: pricing.Round(sumAmount), Tax: pricing.Round(sumTax)}
}
