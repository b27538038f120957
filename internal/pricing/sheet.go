package pricing

import (
	"encoding/json"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Schema describes how a domain categorizes its rows.
type Schema struct {
	Domain           string
	TaxCategory      Category
	DiscountCategory Category
	// GrossExcludesTax is set for ledgers whose tax rows duplicate tax that is
	// already contained in other rows (order sheets).
	GrossExcludesTax bool
}

// Price is an amount in minor units with its currency.
type Price struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currencyCode"`
}

// DiscountPrice is the aggregated amount of one discount on a sheet.
type DiscountPrice struct {
	DiscountID string `json:"discountId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currencyCode"`
}

// TotalOptions narrows Total.
type TotalOptions struct {
	Category    Category
	UseNetPrice bool
}

// Snapshot is the persisted shape of a sheet.
type Snapshot struct {
	Rows         []Row  `json:"rows"`
	CurrencyCode string `json:"currencyCode"`
	Quantity     int    `json:"quantity,omitempty"`
}

// Sheet is an ordered, read-only collection of calculation rows for one entity.
type Sheet struct {
	schema   Schema
	rows     []Row
	currency string
	quantity int
}

// NewSheet builds a sheet from rows. The rows are copied.
func NewSheet(schema Schema, currency string, quantity int, rows []Row) *Sheet {
	if quantity <= 0 {
		quantity = 1
	}
	return &Sheet{schema: schema, rows: cloneRows(rows), currency: currency, quantity: quantity}
}

// FromSnapshot rebuilds a sheet from its persisted shape.
func FromSnapshot(schema Schema, snap Snapshot) *Sheet {
	return NewSheet(schema, snap.CurrencyCode, snap.Quantity, snap.Rows)
}

// Snapshot returns the persisted shape of the sheet.
func (s *Sheet) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{Rows: cloneRows(s.rows), CurrencyCode: s.currency}
	if s.quantity > 1 {
		snap.Quantity = s.quantity
	}
	if snap.Rows == nil {
		snap.Rows = []Row{}
	}
	return snap
}

// MarshalJSON encodes the sheet as its snapshot.
func (s *Sheet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Schema returns the sheet's domain schema.
func (s *Sheet) Schema() Schema {
	if s == nil {
		return Schema{}
	}
	return s.schema
}

// Rows returns a copy of the rows in insertion order.
func (s *Sheet) Rows() []Row {
	if s == nil {
		return nil
	}
	return cloneRows(s.rows)
}

// Currency returns the sheet currency code.
func (s *Sheet) Currency() string {
	if s == nil {
		return ""
	}
	return s.currency
}

// Quantity returns the unit count the sheet prices, at least 1.
func (s *Sheet) Quantity() int {
	if s == nil || s.quantity <= 0 {
		return 1
	}
	return s.quantity
}

// IsValid reports whether the sheet holds any rows.
func (s *Sheet) IsValid() bool {
	return s != nil && len(s.rows) > 0
}

// FilterBy returns copies of the rows matching f.
func (s *Sheet) FilterBy(f Filter) []Row {
	if s == nil {
		return nil
	}
	return cloneRows(lo.Filter(s.rows, func(r Row, _ int) bool { return f.Match(r) }))
}

// Sum adds up the amounts of the rows matching f.
func (s *Sheet) Sum(f Filter) int64 {
	if s == nil {
		return 0
	}
	return lo.SumBy(s.rows, func(r Row) int64 {
		if f.Match(r) {
			return r.Amount
		}
		return 0
	})
}

// TaxSum is the total of the tax rows.
func (s *Sheet) TaxSum() int64 {
	if s == nil || s.schema.TaxCategory == "" {
		return 0
	}
	return s.Sum(Filter{Category: s.schema.TaxCategory})
}

// Gross is the amount the customer pays including tax.
func (s *Sheet) Gross() int64 {
	if s == nil {
		return 0
	}
	if s.schema.GrossExcludesTax {
		return s.Sum(Filter{}) - s.TaxSum()
	}
	return s.Sum(Filter{})
}

// Net is Gross without tax.
func (s *Sheet) Net() int64 {
	return s.Gross() - s.TaxSum()
}

// Total returns the gross (or net) amount, optionally of one category only.
func (s *Sheet) Total(opts TotalOptions) Price {
	if opts.Category != "" {
		return Price{Amount: s.Sum(Filter{Category: opts.Category}), Currency: s.Currency()}
	}
	if opts.UseNetPrice {
		return Price{Amount: s.Net(), Currency: s.Currency()}
	}
	return Price{Amount: s.Gross(), Currency: s.Currency()}
}

// UnitPrice divides the total by the sheet quantity.
func (s *Sheet) UnitPrice(useNetPrice bool) Price {
	total := s.Total(TotalOptions{UseNetPrice: useNetPrice})
	unit := decimal.NewFromInt(total.Amount).Div(decimal.NewFromInt(int64(s.Quantity())))
	return Price{Amount: Round(unit), Currency: total.Currency}
}

// TaxRows returns the tax rows of the sheet.
func (s *Sheet) TaxRows() []Row {
	if s == nil || s.schema.TaxCategory == "" {
		return nil
	}
	return s.FilterBy(Filter{Category: s.schema.TaxCategory})
}

// DiscountSum totals the discount rows carrying the given discount id.
func (s *Sheet) DiscountSum(discountID string) int64 {
	if s == nil || s.schema.DiscountCategory == "" || discountID == "" {
		return 0
	}
	return s.Sum(Filter{Category: s.schema.DiscountCategory, DiscountID: discountID})
}

// DiscountPrices aggregates discount rows per discount id, ordered by id.
// Passing ids restricts the result to those discounts. Zero totals are
// dropped.
func (s *Sheet) DiscountPrices(discountID ...string) []DiscountPrice {
	if s == nil || s.schema.DiscountCategory == "" {
		return nil
	}
	ids := lo.Uniq(lo.FilterMap(s.rows, func(r Row, _ int) (string, bool) {
		return r.DiscountID, r.Category == s.schema.DiscountCategory && r.DiscountID != ""
	}))
	if len(discountID) > 0 {
		ids = lo.Filter(ids, func(id string, _ int) bool { return lo.Contains(discountID, id) })
	}
	slices.Sort(ids)
	out := make([]DiscountPrice, 0, len(ids))
	for _, id := range ids {
		amount := s.DiscountSum(id)
		if amount == 0 {
			continue
		}
		out = append(out, DiscountPrice{DiscountID: id, Amount: amount, Currency: s.currency})
	}
	return out
}
