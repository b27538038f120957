package pricing

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ApplyTax computes tax for the taxable rows of the given categories.
//
// A gross row (IsNetPrice false) already contains its tax: the tax is backed
// out as amount - amount/(1+rate) and the source is neutralised by an
// offsetting non-taxable row next to the positive tax row. The offset carries
// no discount id, so discount totals keep their gross value. A net row only
// gains a tax row of amount*rate.
func ApplyTax(rows []Row, rate float64, taxCategory Category, categories ...Category) []Row {
	if rate <= 0 || taxCategory == "" {
		return nil
	}
	r := decimal.NewFromFloat(rate)
	divisor := decimal.NewFromInt(1).Add(r)

	var out []Row
	for _, row := range rows {
		if !row.IsTaxable || row.Amount == 0 {
			continue
		}
		if len(categories) > 0 && !slices.Contains(categories, row.Category) {
			continue
		}
		amount := decimal.NewFromInt(row.Amount)
		var tax int64
		if row.IsNetPrice {
			tax = Round(amount.Mul(r))
		} else {
			tax = Round(amount.Sub(amount.Div(divisor)))
		}
		if tax == 0 {
			continue
		}
		if !row.IsNetPrice {
			out = append(out, Row{
				Category:   row.Category,
				Amount:     -tax,
				IsNetPrice: row.IsNetPrice,
			})
		}
		taxRow := Row{
			Category:   taxCategory,
			Amount:     tax,
			IsNetPrice: true,
			Rate:       Float(rate),
		}
		if row.DiscountID != "" {
			taxRow.Meta = map[string]any{MetaDiscountID: row.DiscountID}
		}
		out = append(out, taxRow)
	}
	return out
}
