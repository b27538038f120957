package pricing_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var testSchema = pricing.Schema{Domain: "product", TaxCategory: "TAX", DiscountCategory: "DISCOUNT"}

func scenarioARows() []pricing.Row {
	return []pricing.Row{
		{Category: "ITEM", Amount: 200, IsNetPrice: true, Meta: map[string]any{"adapter": "ITEM1"}},
		{Category: "ITEM", Amount: 200, IsNetPrice: true, Meta: map[string]any{"adapter": "ITEM2"}},
		{Category: "TAX", Amount: 50, Rate: pricing.Float(0.25)},
		{Category: "TAX", Amount: 25, Rate: pricing.Float(0.125)},
		{Category: "DISCOUNT", Amount: 20, DiscountID: "for-all"},
		{Category: "DISCOUNT", Amount: 20, DiscountID: "for-all"},
		{Category: "DISCOUNT", Amount: 20, DiscountID: "special"},
	}
}

func TestSheetScenarioA(t *testing.T) {
	sheet := pricing.NewSheet(testSchema, "CHF", 2, scenarioARows())

	require.True(t, sheet.IsValid())
	require.Equal(t, int64(535), sheet.Gross())
	require.Equal(t, int64(460), sheet.Net())
	require.Equal(t, int64(75), sheet.TaxSum())
	require.Equal(t, pricing.Price{Amount: 268, Currency: "CHF"}, sheet.UnitPrice(false))
	require.Equal(t, pricing.Price{Amount: 230, Currency: "CHF"}, sheet.UnitPrice(true))
	require.Equal(t, []pricing.DiscountPrice{{DiscountID: "for-all", Amount: 40, Currency: "CHF"}}, sheet.DiscountPrices("for-all"))
}

func TestSheetFilters(t *testing.T) {
	sheet := pricing.NewSheet(testSchema, "CHF", 2, scenarioARows())

	require.Equal(t, int64(400), sheet.Sum(pricing.Filter{Category: "ITEM"}))
	require.Equal(t, int64(400), sheet.Sum(pricing.Filter{IsNetPrice: pricing.Bool(true)}))
	require.Equal(t, int64(50), sheet.Sum(pricing.Filter{Category: "TAX", Rate: pricing.Float(0.25)}))
	require.Len(t, sheet.FilterBy(pricing.Filter{Category: "DISCOUNT", DiscountID: "special"}), 1)
	require.Len(t, sheet.TaxRows(), 2)
	require.Equal(t, pricing.Price{Amount: 60, Currency: "CHF"}, sheet.Total(pricing.TotalOptions{Category: "DISCOUNT"}))
	require.Equal(t, "ITEM2", sheet.Rows()[1].Adapter())
}

func TestSheetRowsAreCopied(t *testing.T) {
	rows := scenarioARows()
	sheet := pricing.NewSheet(testSchema, "CHF", 1, rows)
	rows[0].Amount = 9999
	rows[0].Meta["adapter"] = "mutated"

	got := sheet.Rows()
	require.Equal(t, int64(200), got[0].Amount)
	require.Equal(t, "ITEM1", got[0].Adapter())

	got[1].Amount = 1
	require.Equal(t, int64(200), sheet.Rows()[1].Amount)
}

func TestSheetEmpty(t *testing.T) {
	var nilSheet *pricing.Sheet
	require.False(t, nilSheet.IsValid())
	require.Zero(t, nilSheet.Gross())
	require.Empty(t, nilSheet.DiscountPrices())

	sheet := pricing.NewSheet(testSchema, "EUR", 0, nil)
	require.False(t, sheet.IsValid())
	require.Equal(t, 1, sheet.Quantity())
	require.Equal(t, pricing.Price{Currency: "EUR"}, sheet.UnitPrice(false))
}

func TestTaxConsistencyForNetRows(t *testing.T) {
	sheet := pricing.NewSheet(testSchema, "CHF", 1, []pricing.Row{
		{Category: "ITEM", Amount: 1990, IsNetPrice: true},
		{Category: "ITEM", Amount: 10, IsNetPrice: true},
	})
	require.Equal(t, sheet.Gross(), sheet.Net())
	require.Zero(t, sheet.TaxSum())
}

func TestDiscountPricesGrouping(t *testing.T) {
	rows := []pricing.Row{
		{Category: "DISCOUNT", Amount: -5, DiscountID: "b"},
		{Category: "ITEM", Amount: 100, DiscountID: "ignored"},
		{Category: "DISCOUNT", Amount: -10, DiscountID: "a"},
		{Category: "DISCOUNT", Amount: -7, DiscountID: "b"},
		{Category: "DISCOUNT", Amount: 3, DiscountID: "zero"},
		{Category: "DISCOUNT", Amount: -3, DiscountID: "zero"},
		{Category: "DISCOUNT", Amount: -1},
	}
	want := []pricing.DiscountPrice{
		{DiscountID: "a", Amount: -10, Currency: "CHF"},
		{DiscountID: "b", Amount: -12, Currency: "CHF"},
	}
	require.Equal(t, want, pricing.NewSheet(testSchema, "CHF", 1, rows).DiscountPrices())

	reversed := make([]pricing.Row, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}
	require.Equal(t, want, pricing.NewSheet(testSchema, "CHF", 1, reversed).DiscountPrices())
}

func TestOrderGrossExcludesTax(t *testing.T) {
	schema := pricing.Schema{Domain: "order", TaxCategory: "TAXES", DiscountCategory: "DISCOUNTS", GrossExcludesTax: true}
	sheet := pricing.NewSheet(schema, "CHF", 1, []pricing.Row{
		{Category: "ITEMS", Amount: 1081},
		{Category: "TAXES", Amount: 81},
	})
	require.Equal(t, int64(1081), sheet.Gross())
	require.Equal(t, int64(1000), sheet.Net())
}

func TestSnapshotRoundTrip(t *testing.T) {
	sheet := pricing.NewSheet(testSchema, "CHF", 2, scenarioARows())
	data, err := json.Marshal(sheet)
	require.NoError(t, err)

	var snap pricing.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored := pricing.FromSnapshot(testSchema, snap)

	require.Equal(t, sheet.Gross(), restored.Gross())
	require.Equal(t, sheet.UnitPrice(false), restored.UnitPrice(false))
	require.Equal(t, sheet.DiscountPrices(), restored.DiscountPrices())
	require.Equal(t, 2, restored.Quantity())
}
