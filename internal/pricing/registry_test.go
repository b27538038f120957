package pricing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

type testContext struct {
	Currency string `validate:"required,len=3"`
}

func (c testContext) Validate() error      { return pricing.ValidateStruct(c) }
func (c testContext) CurrencyCode() string { return c.Currency }
func (c testContext) SheetQuantity() int   { return 1 }

type stubAdapter struct {
	pricing.Descriptor
	active bool
	calc   func(ctx context.Context, pctx testContext, prior []pricing.Row) ([]pricing.Row, error)
}

func (a stubAdapter) IsActivatedFor(testContext) bool { return a.active }

func (a stubAdapter) Calculate(ctx context.Context, pctx testContext, prior []pricing.Row) ([]pricing.Row, error) {
	return a.calc(ctx, pctx, prior)
}

func fixed(key string, index int, amount int64) stubAdapter {
	return stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: key, AdapterVersion: "1.0", Index: index},
		active:     true,
		calc: func(context.Context, testContext, []pricing.Row) ([]pricing.Row, error) {
			return []pricing.Row{{Category: "ITEM", Amount: amount, IsNetPrice: true}}, nil
		},
	}
}

func TestRegistryDuplicateKey(t *testing.T) {
	reg := pricing.NewRegistry[testContext](testSchema)
	require.NoError(t, reg.Register(fixed("base", 0, 100)))

	err := reg.Register(fixed("base", 1, 200))
	require.ErrorIs(t, err, pricing.ErrDuplicateAdapterKey)
	require.ErrorIs(t, reg.Register(fixed(" ", 1, 200)), pricing.ErrInvalidAdapter)
	require.ErrorIs(t, reg.Register(nil), pricing.ErrInvalidAdapter)
	require.Panics(t, func() { reg.MustRegister(fixed("base", 2, 1)) })
}

func TestRegistryIsolatesFailingAdapters(t *testing.T) {
	failing := stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: "failing", Index: 1},
		active:     true,
		calc: func(context.Context, testContext, []pricing.Row) ([]pricing.Row, error) {
			return nil, errors.New("provider unavailable")
		},
	}
	panicking := stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: "panicking", Index: 2},
		active:     true,
		calc: func(context.Context, testContext, []pricing.Row) ([]pricing.Row, error) {
			panic("nil map")
		},
	}
	reg := pricing.NewRegistry[testContext](testSchema).
		MustRegister(fixed("base", 0, 100), failing, panicking, fixed("extra", 3, 5))

	sheet, err := reg.Run(context.Background(), testContext{Currency: "CHF"})
	require.NoError(t, err)
	rows := sheet.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "base", rows[0].Adapter())
	require.Equal(t, "extra", rows[1].Adapter())
	require.Equal(t, int64(105), sheet.Gross())
}

func TestRegistryInvalidContextFails(t *testing.T) {
	reg := pricing.NewRegistry[testContext](testSchema).MustRegister(fixed("base", 0, 100))
	sheet, err := reg.Run(context.Background(), testContext{})
	require.ErrorIs(t, err, pricing.ErrInvalidContext)
	require.Nil(t, sheet)
}

func TestRegistryOrderAndPriorRows(t *testing.T) {
	var seen []int
	doubler := stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: "double", Index: 10},
		active:     true,
		calc: func(_ context.Context, _ testContext, prior []pricing.Row) ([]pricing.Row, error) {
			seen = append(seen, len(prior))
			sheet := pricing.NewSheet(testSchema, "CHF", 1, prior)
			return []pricing.Row{{Category: "ITEM", Amount: sheet.Gross()}}, nil
		},
	}
	inactive := fixed("inactive", 0, 1000)
	inactive.active = false

	reg := pricing.NewRegistry[testContext](testSchema).
		MustRegister(doubler, fixed("late", 5, 7), inactive, fixed("early", 5, 3))

	keys := make([]string, 0)
	for _, a := range reg.Adapters() {
		keys = append(keys, a.Key())
	}
	require.Equal(t, []string{"inactive", "late", "early", "double"}, keys)

	sheet, err := reg.Run(context.Background(), testContext{Currency: "CHF"})
	require.NoError(t, err)
	require.Equal(t, []int{2}, seen)
	require.Equal(t, int64(20), sheet.Gross())
}

func TestRegistryRunIsIdempotent(t *testing.T) {
	reg := pricing.NewRegistry[testContext](testSchema).
		MustRegister(fixed("base", 0, 1234), stubAdapter{
			Descriptor: pricing.Descriptor{AdapterKey: "vat", Index: 1},
			active:     true,
			calc: func(_ context.Context, _ testContext, prior []pricing.Row) ([]pricing.Row, error) {
				return pricing.ApplyTax(prior, 0.077, "TAX"), nil
			},
		})
	reg.MustRegister(stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: "taxable", Index: 0},
		active:     true,
		calc: func(context.Context, testContext, []pricing.Row) ([]pricing.Row, error) {
			return []pricing.Row{{Category: "ITEM", Amount: 999, IsTaxable: true}}, nil
		},
	})

	ctx := context.Background()
	first, err := reg.Run(ctx, testContext{Currency: "CHF"})
	require.NoError(t, err)
	second, err := reg.Run(ctx, testContext{Currency: "CHF"})
	require.NoError(t, err)
	require.Equal(t, first.Rows(), second.Rows())
	require.Len(t, first.TaxRows(), 1)
}

type scopedContext struct {
	testContext
	key string
}

func (c scopedContext) ScopeFor(_ context.Context, adapterKey string, _ *pricing.Sheet) scopedContext {
	c.key = adapterKey
	return c
}

type echoAdapter struct{ pricing.Descriptor }

func (echoAdapter) IsActivatedFor(scopedContext) bool { return true }

func (a echoAdapter) Calculate(_ context.Context, pctx scopedContext, _ []pricing.Row) ([]pricing.Row, error) {
	return []pricing.Row{{Category: "ITEM", Amount: 1, Meta: map[string]any{"scope": pctx.key}}}, nil
}

func TestRegistryScopesContextPerAdapter(t *testing.T) {
	reg := pricing.NewRegistry[scopedContext](testSchema).
		MustRegister(echoAdapter{pricing.Descriptor{AdapterKey: "a"}}, echoAdapter{pricing.Descriptor{AdapterKey: "b", Index: 1}})

	sheet, err := reg.Run(context.Background(), scopedContext{testContext: testContext{Currency: "CHF"}})
	require.NoError(t, err)
	rows := sheet.Rows()
	require.Equal(t, "a", rows[0].Meta["scope"])
	require.Equal(t, "b", rows[1].Meta["scope"])
	require.Equal(t, "b", rows[1].Adapter())
}

func TestGuardSkipsAdapterWhileOpen(t *testing.T) {
	calls := 0
	flaky := stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: "fx", Index: 1},
		active:     true,
		calc: func(context.Context, testContext, []pricing.Row) ([]pricing.Row, error) {
			calls++
			return nil, errors.New("timeout")
		},
	}
	breaker := resilience.NewBreaker("fx", resilience.Settings{MinRequests: 1, FailureRatio: 1})
	reg := pricing.NewRegistry[testContext](testSchema).
		MustRegister(fixed("base", 0, 100), pricing.Guard[testContext](flaky, breaker))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		sheet, err := reg.Run(ctx, testContext{Currency: "CHF"})
		require.NoError(t, err)
		require.Equal(t, int64(100), sheet.Gross())
	}
	require.Equal(t, 1, calls)
	require.Equal(t, resilience.Open, breaker.State())
}

func TestGuardIgnoresChargeMisses(t *testing.T) {
	calls := 0
	missing := stubAdapter{
		Descriptor: pricing.Descriptor{AdapterKey: "fee", Index: 1},
		active:     true,
		calc: func(context.Context, testContext, []pricing.Row) ([]pricing.Row, error) {
			calls++
			return nil, fmt.Errorf("%w: cash in CHF/CH", pricing.ErrChargeNotFound)
		},
	}
	breaker := resilience.NewBreaker("fee", resilience.Settings{MinRequests: 10, FailureRatio: 0.5})
	reg := pricing.NewRegistry[testContext](testSchema).
		MustRegister(fixed("base", 0, 2000), pricing.Guard[testContext](missing, breaker))

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		sheet, err := reg.Run(ctx, testContext{Currency: "CHF"})
		require.NoError(t, err)
		require.Equal(t, int64(2000), sheet.Gross())
	}
	require.Equal(t, 20, calls)
	require.Equal(t, resilience.Closed, breaker.State())

	guarded := pricing.Guard[testContext](missing, breaker)
	_, err := guarded.Calculate(ctx, testContext{Currency: "CHF"}, nil)
	require.ErrorIs(t, err, pricing.ErrChargeNotFound)
}
