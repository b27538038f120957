package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

const tracerName = "github.com/noah-isme/toko-pricing/internal/pricing"

// Registry holds the adapters of one pricing domain and folds them into a sheet.
// Registration happens at startup; Run may be called concurrently afterwards.
type Registry[C Context] struct {
	schema   Schema
	adapters []Adapter[C]
	keys     map[string]struct{}
}

// NewRegistry creates an empty registry for the given domain schema.
func NewRegistry[C Context](schema Schema) *Registry[C] {
	return &Registry[C]{schema: schema, keys: make(map[string]struct{})}
}

// Schema returns the domain schema used for produced sheets.
func (r *Registry[C]) Schema() Schema {
	return r.schema
}

// Register adds an adapter. Keys must be unique.
func (r *Registry[C]) Register(adapter Adapter[C]) error {
	if adapter == nil {
		return ErrInvalidAdapter
	}
	key := strings.TrimSpace(adapter.Key())
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidAdapter)
	}
	if _, exists := r.keys[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapterKey, key)
	}
	r.keys[key] = struct{}{}
	r.adapters = append(r.adapters, adapter)
	return nil
}

// MustRegister registers adapters and panics on error. Intended for startup wiring.
func (r *Registry[C]) MustRegister(adapters ...Adapter[C]) *Registry[C] {
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Adapters returns the adapters sorted by order index. Ties keep registration order.
func (r *Registry[C]) Adapters() []Adapter[C] {
	out := make([]Adapter[C], len(r.adapters))
	copy(out, r.adapters)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex() < out[j].OrderIndex()
	})
	return out
}

// Run validates the context and folds every activated adapter, in order, into
// a sheet. A failing adapter is logged and contributes no rows.
func (r *Registry[C]) Run(ctx context.Context, pctx C) (*Sheet, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pricing.run")
	defer span.End()
	span.SetAttributes(attribute.String("pricing.domain", r.schema.Domain))

	if err := pctx.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid context")
		obs.ObservePricingRun(r.schema.Domain, "invalid_context", time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidContext, r.schema.Domain, err)
	}

	logger := zerolog.Ctx(ctx)
	currency := pctx.CurrencyCode()
	quantity := pctx.SheetQuantity()
	var rows []Row

	for _, adapter := range r.Adapters() {
		scoped := pctx
		if scoper, ok := any(pctx).(Scoper[C]); ok {
			scoped = scoper.ScopeFor(ctx, adapter.Key(), NewSheet(r.schema, currency, quantity, rows))
		}
		if !adapter.IsActivatedFor(scoped) {
			continue
		}
		added, err := r.calculate(ctx, adapter, scoped, rows)
		if err != nil {
			obs.CountAdapterFailure(r.schema.Domain, adapter.Key())
			span.AddEvent("adapter_failed", trace.WithAttributes(attribute.String("pricing.adapter", adapter.Key())))
			logger.Error().
				Err(err).
				Str("domain", r.schema.Domain).
				Str("adapter", adapter.Key()).
				Str("version", adapter.Version()).
				Msg("pricing_adapter_failed")
			continue
		}
		for _, row := range added {
			row = row.clone()
			if row.Meta == nil {
				row.Meta = map[string]any{}
			}
			if _, ok := row.Meta[MetaAdapter]; !ok {
				row.Meta[MetaAdapter] = adapter.Key()
			}
			rows = append(rows, row)
		}
	}

	obs.ObservePricingRun(r.schema.Domain, "ok", time.Since(start))
	span.SetAttributes(attribute.Int("pricing.rows", len(rows)))
	return NewSheet(r.schema, currency, quantity, rows), nil
}

func (r *Registry[C]) calculate(ctx context.Context, adapter Adapter[C], pctx C, prior []Row) (rows []Row, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rows = nil
			err = fmt.Errorf("%w: %v", ErrAdapterPanic, rec)
		}
	}()
	return adapter.Calculate(ctx, pctx, cloneRows(prior))
}
