package pricing

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Category labels a calculation row inside one pricing domain.
type Category string

// Meta keys written by the engine.
const (
	MetaAdapter    = "adapter"
	MetaDiscountID = "discountId"
)

// Row is one categorized, signed monetary entry in minor currency units.
// Rows are append-only: corrections are expressed as new rows.
type Row struct {
	Category   Category       `json:"category"`
	Amount     int64          `json:"amount"`
	IsTaxable  bool           `json:"isTaxable"`
	IsNetPrice bool           `json:"isNetPrice"`
	DiscountID string         `json:"discountId,omitempty"`
	Rate       *float64       `json:"rate,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Adapter returns the key of the pricing adapter that produced the row.
func (r Row) Adapter() string {
	if r.Meta == nil {
		return ""
	}
	key, _ := r.Meta[MetaAdapter].(string)
	return key
}

func (r Row) clone() Row {
	out := r
	if r.Rate != nil {
		rate := *r.Rate
		out.Rate = &rate
	}
	if r.Meta != nil {
		out.Meta = maps.Clone(r.Meta)
	}
	return out
}

// Filter selects rows. Zero values (empty strings, nil pointers) match any row.
type Filter struct {
	Category   Category
	IsTaxable  *bool
	IsNetPrice *bool
	DiscountID string
	Rate       *float64
}

// Match reports whether the row satisfies every field set on the filter.
func (f Filter) Match(r Row) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.IsTaxable != nil && r.IsTaxable != *f.IsTaxable {
		return false
	}
	if f.IsNetPrice != nil && r.IsNetPrice != *f.IsNetPrice {
		return false
	}
	if f.DiscountID != "" && r.DiscountID != f.DiscountID {
		return false
	}
	if f.Rate != nil && (r.Rate == nil || *r.Rate != *f.Rate) {
		return false
	}
	return true
}

// Bool returns a pointer to v, for use in filters.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Round converts a decimal amount to minor units, rounding half away from zero.
func Round(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func cloneRows(rows []Row) []Row {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.clone()
	}
	return out
}
