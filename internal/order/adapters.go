package order

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/allocation"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Adapter keys.
const (
	KeyItems    = "order-items"
	KeyDelivery = "order-delivery"
	KeyPayment  = "order-payment"
	KeyDiscount = "order-discount"
)

// Meta keys set on order rows.
const (
	MetaPositionID = "positionId"
	MetaSource     = "source"
)

// Items totals the position sheets.
type Items struct{ pricing.Descriptor }

// NewItems creates the adapter that totals the positions.
func NewItems() *Items {
	return &Items{pricing.Descriptor{AdapterKey: KeyItems, AdapterLabel: "Order items", AdapterVersion: "1.0.0", Index: 0}}
}

func (a *Items) IsActivatedFor(pctx Context) bool { return len(pctx.Positions) > 0 }

func (a *Items) Calculate(_ context.Context, pctx Context, _ []pricing.Row) ([]pricing.Row, error) {
	var rows []pricing.Row
	for _, p := range pctx.Positions {
		rows = append(rows, subtotal(CategoryItems, p.Sheet, map[string]any{MetaPositionID: p.ID})...)
	}
	return rows, nil
}

// Delivery carries the delivery sheet into the order.
type Delivery struct{ pricing.Descriptor }

// NewDelivery creates the adapter that carries the delivery sheet.
func NewDelivery() *Delivery {
	return &Delivery{pricing.Descriptor{AdapterKey: KeyDelivery, AdapterLabel: "Order delivery", AdapterVersion: "1.0.0", Index: 10}}
}

func (a *Delivery) IsActivatedFor(pctx Context) bool { return pctx.Delivery.IsValid() }

func (a *Delivery) Calculate(_ context.Context, pctx Context, _ []pricing.Row) ([]pricing.Row, error) {
	return subtotal(CategoryDelivery, pctx.Delivery, map[string]any{MetaSource: "delivery"}), nil
}

// Payment carries the payment sheet into the order.
type Payment struct{ pricing.Descriptor }

// NewPayment creates the adapter that carries the payment sheet.
func NewPayment() *Payment {
	return &Payment{pricing.Descriptor{AdapterKey: KeyPayment, AdapterLabel: "Order payment", AdapterVersion: "1.0.0", Index: 20}}
}

func (a *Payment) IsActivatedFor(pctx Context) bool { return pctx.Payment.IsValid() }

func (a *Payment) Calculate(_ context.Context, pctx Context, _ []pricing.Row) ([]pricing.Row, error) {
	return subtotal(CategoryPayment, pctx.Payment, map[string]any{MetaSource: "payment"}), nil
}

// Discount allocates the order level discounts over positions and fees.
type Discount struct{ pricing.Descriptor }

// NewDiscount creates the order discount adapter.
func NewDiscount() *Discount {
	return &Discount{pricing.Descriptor{AdapterKey: KeyDiscount, AdapterLabel: "Order discount", AdapterVersion: "1.0.0", Index: 30}}
}

func (a *Discount) IsActivatedFor(pctx Context) bool { return len(pctx.Applied) > 0 }

func (a *Discount) Calculate(_ context.Context, pctx Context, _ []pricing.Row) ([]pricing.Row, error) {
	deductions := make([]allocation.Deduction, 0, len(pctx.Applied))
	for _, d := range pctx.Applied {
		deductions = append(deductions, allocation.Deduction{DiscountID: d.DiscountID, Configuration: d.Configuration})
	}
	alloc := allocation.Allocator{Items: pctx.ItemShares(), Fees: pctx.FeeShares()}

	var rows []pricing.Row
	for _, res := range alloc.Apply(deductions) {
		if res.Amount() == 0 {
			continue
		}
		rows = append(rows, pricing.Row{
			Category:   CategoryDiscounts,
			Amount:     -res.Amount(),
			DiscountID: res.DiscountID,
		})
		if tax := res.Tax(); tax != 0 {
			rows = append(rows, pricing.Row{
				Category: CategoryTaxes,
				Amount:   -tax,
				Meta:     map[string]any{pricing.MetaDiscountID: res.DiscountID},
			})
		}
	}
	return rows, nil
}

// subtotal turns a sub-sheet into one gross row plus its tax rows, one per
// rate in order of first appearance.
func subtotal(category pricing.Category, sheet *pricing.Sheet, meta map[string]any) []pricing.Row {
	if !sheet.IsValid() {
		return nil
	}
	rows := []pricing.Row{{Category: category, Amount: sheet.Gross(), Meta: meta}}

	type bucket struct {
		rate   *float64
		amount int64
	}
	var buckets []*bucket
	index := map[float64]*bucket{}
	var unrated bucket
	for _, r := range sheet.TaxRows() {
		if r.Rate == nil {
			unrated.amount += r.Amount
			continue
		}
		b, ok := index[*r.Rate]
		if !ok {
			b = &bucket{rate: pricing.Float(*r.Rate)}
			index[*r.Rate] = b
			buckets = append(buckets, b)
		}
		b.amount += r.Amount
	}
	buckets = append(buckets, &unrated)
	for _, b := range buckets {
		if b.amount == 0 {
			continue
		}
		rows = append(rows, pricing.Row{Category: CategoryTaxes, Amount: b.amount, IsNetPrice: true, Rate: b.rate, Meta: meta})
	}
	return rows
}

// NewDefaultRegistry wires the built-in order adapters.
func NewDefaultRegistry() *Registry {
	return NewRegistry().MustRegister(NewItems(), NewDelivery(), NewPayment(), NewDiscount())
}
