package pricing

import (
	"context"
	"errors"

	"github.com/noah-isme/toko-pricing/internal/resilience"
)

type guarded[C any] struct {
	Adapter[C]
	breaker *resilience.Breaker
}

// Guard wraps an adapter that depends on a flaky collaborator. While the
// breaker is open the adapter is not called and Calculate returns
// resilience.ErrOpenCircuit, so the registry skips it. ErrChargeNotFound is a
// data miss, not a fault: it is still returned but counts as a success.
func Guard[C any](adapter Adapter[C], breaker *resilience.Breaker) Adapter[C] {
	if breaker == nil {
		return adapter
	}
	return guarded[C]{Adapter: adapter, breaker: breaker}
}

func (g guarded[C]) Calculate(ctx context.Context, pctx C, prior []Row) ([]Row, error) {
	var (
		rows []Row
		miss error
	)
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		rows, err = g.Adapter.Calculate(ctx, pctx, prior)
		if errors.Is(err, ErrChargeNotFound) {
			miss = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if miss != nil {
		return nil, miss
	}
	return rows, nil
}
