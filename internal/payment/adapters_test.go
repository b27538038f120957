package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

func TestPaymentFee(t *testing.T) {
	fees := pricing.ChargeTable{
		{ID: "invoice", Currency: "EUR"}: {Amount: 250, IsTaxable: true, IsNetPrice: true},
		{ID: "card", Currency: "EUR"}:    {},
	}
	reg := payment.NewDefaultRegistry(fees, pricing.TaxRates{"DE": 0.19})
	ctx := context.Background()

	sheet, err := reg.Run(ctx, payment.Context{OrderID: "o-1", ProviderID: "invoice", Currency: "EUR", Country: "DE"})
	require.NoError(t, err)
	require.Equal(t, int64(298), sheet.Gross())
	require.Equal(t, int64(250), sheet.Net())
	require.Equal(t, 0.19, *sheet.TaxRows()[0].Rate)

	sheet, err = reg.Run(ctx, payment.Context{OrderID: "o-1", ProviderID: "card", Currency: "EUR", Country: "DE"})
	require.NoError(t, err)
	require.False(t, sheet.IsValid())
}

func TestPaymentUnknownProviderContributesNothing(t *testing.T) {
	reg := payment.NewDefaultRegistry(pricing.ChargeTable{}, nil)
	sheet, err := reg.Run(context.Background(), payment.Context{OrderID: "o-1", ProviderID: "cash", Currency: "EUR", Country: "DE"})
	require.NoError(t, err)
	require.Zero(t, sheet.Gross())
}
