package discount_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/discount"
)

func TestManagerCodeLifecycle(t *testing.T) {
	m := newManager(discount.NewMemoryStore())
	ctx := context.Background()
	dctx := discount.Context{OrderID: "o-1", Currency: "CHF", ItemsTotal: 2500}

	d, err := m.RedeemCode(ctx, dctx, "fiver")
	require.NoError(t, err)
	require.Equal(t, discount.TriggerCode, d.Trigger)
	require.Equal(t, "FIVER", d.Code)
	require.Equal(t, "voucher-code", d.DiscountKey)

	_, err = m.RedeemCode(ctx, dctx, "FIVER")
	require.ErrorIs(t, err, discount.ErrCodeAlreadyRedeemed)

	_, err = m.RedeemCode(ctx, dctx, "NOPE")
	require.ErrorIs(t, err, discount.ErrCodeNotFound)

	// dropping below the minimum invalidates the code
	dctx.ItemsTotal = 1000
	kept, err := m.Reconcile(ctx, dctx)
	require.NoError(t, err)
	require.Empty(t, kept)

	dctx.ItemsTotal = 2500
	d, err = m.RedeemCode(ctx, dctx, "FIVER")
	require.NoError(t, err)
	removed, err := m.Remove(ctx, "o-1", d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, removed.ID)

	_, err = m.Remove(ctx, "o-1", d.ID)
	require.ErrorIs(t, err, discount.ErrDiscountNotFound)
}

func TestManagerManualDiscounts(t *testing.T) {
	m := newManager(discount.NewMemoryStore())
	ctx := context.Background()
	dctx := discount.Context{OrderID: "o-1", Currency: "CHF"}

	_, err := m.AddManual(ctx, dctx, "summer-code")
	require.ErrorIs(t, err, discount.ErrManualAdditionNotAllowed)

	_, err = m.AddManual(ctx, dctx, "missing")
	require.ErrorIs(t, err, discount.ErrAdapterNotFound)

	d, err := m.AddManual(ctx, dctx, "goodwill")
	require.NoError(t, err)
	require.Equal(t, discount.TriggerUser, d.Trigger)

	kept, err := m.Reconcile(ctx, dctx)
	require.NoError(t, err)
	require.Len(t, kept, 1)

	_, err = m.Remove(ctx, "o-1", d.ID)
	require.NoError(t, err)
}

func TestManagerSystemDiscounts(t *testing.T) {
	m := newManager(discount.NewMemoryStore())
	ctx := context.Background()
	dctx := discount.Context{OrderID: "o-1", Currency: "CHF", CustomerTags: []string{"staff"}}

	kept, err := m.Reconcile(ctx, dctx)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	require.Equal(t, discount.TriggerSystem, kept[0].Trigger)

	again, err := m.Reconcile(ctx, dctx)
	require.NoError(t, err)
	require.Equal(t, kept, again)

	_, err = m.Remove(ctx, "o-1", kept[0].ID)
	require.ErrorIs(t, err, discount.ErrManualRemovalNotAllowed)

	dctx.CustomerTags = nil
	kept, err = m.Reconcile(ctx, dctx)
	require.NoError(t, err)
	require.Empty(t, kept)
}

func TestManagerDropsDiscountsWithoutAdapter(t *testing.T) {
	store := discount.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, discount.Discount{ID: "ghost", OrderID: "o-1", DiscountKey: "retired", Trigger: discount.TriggerUser}))

	m := newManager(store)
	kept, err := m.Reconcile(ctx, discount.Context{OrderID: "o-1"})
	require.NoError(t, err)
	require.Empty(t, kept)

	list, err := m.List(ctx, "o-1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestManagerNotConfigured(t *testing.T) {
	var m *discount.Manager
	_, err := m.List(context.Background(), "o-1")
	require.Error(t, err)
}
