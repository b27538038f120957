package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Deduction is one discount's configured reduction, in processing order.
type Deduction struct {
	DiscountID    string
	Configuration pricing.DiscountConfiguration
}

// Result is the allocation of one deduction. Amounts are positive magnitudes.
type Result struct {
	DiscountID  string
	ItemsAmount int64
	ItemsTax    int64
	FeesAmount  int64
	FeesTax     int64
	// AmountLeft is the remaining budget after this deduction.
	AmountLeft int64
}

// Amount is the total deducted by the discount.
func (r Result) Amount() int64 { return r.ItemsAmount + r.FeesAmount }

// Tax is the embedded tax removed together with the discount.
func (r Result) Tax() int64 { return r.ItemsTax + r.FeesTax }

// Allocator applies deductions against item shares first and fee shares
// second, sharing one budget that starts at the pre-discount order total.
type Allocator struct {
	Items []Share
	Fees  []Share
}

// Apply processes the deductions in the given order. Neither the shared
// budget nor either pool ever goes negative, so later deductions only consume
// what earlier ones left in the pool they draw from.
func (a Allocator) Apply(deductions []Deduction) []Result {
	totalItems := Total(a.Items)
	totalFees := Total(a.Fees)
	itemsLeft, feesLeft := totalItems, totalFees
	amountLeft := totalItems + totalFees

	results := make([]Result, 0, len(deductions))
	for _, d := range deductions {
		res := Result{DiscountID: d.DiscountID}

		itemsDeduction := clamp(base(d.Configuration, totalItems, 0), min(amountLeft, itemsLeft))
		items := Distribute(itemsDeduction, a.Items, totalItems)
		res.ItemsAmount = min(items.Amount, amountLeft, itemsLeft)
		res.ItemsTax = items.Tax
		itemsLeft -= res.ItemsAmount
		amountLeft -= res.ItemsAmount

		feesDeduction := clamp(base(d.Configuration, totalFees, res.ItemsAmount), min(amountLeft, feesLeft))
		fees := Distribute(feesDeduction, a.Fees, totalFees)
		res.FeesAmount = min(fees.Amount, amountLeft, feesLeft)
		res.FeesTax = fees.Tax
		feesLeft -= res.FeesAmount
		amountLeft -= res.FeesAmount

		res.AmountLeft = amountLeft
		results = append(results, res)
	}
	return results
}

// base is the deduction a configuration asks for against one pool. A fixed
// amount only spends what an earlier pool of the same discount left over.
func base(cfg pricing.DiscountConfiguration, total, alreadyDeducted int64) decimal.Decimal {
	switch {
	case cfg.Rate != nil:
		return decimal.NewFromInt(total).Mul(decimal.NewFromFloat(*cfg.Rate))
	case cfg.FixedRate != nil:
		return decimal.NewFromInt(min(*cfg.FixedRate-alreadyDeducted, total))
	default:
		return decimal.Zero
	}
}

func clamp(d decimal.Decimal, limit int64) decimal.Decimal {
	return decimal.Max(decimal.Zero, decimal.Min(decimal.NewFromInt(limit), d))
}
