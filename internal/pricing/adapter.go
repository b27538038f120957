package pricing

import (
	"context"
	"errors"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	// ErrDuplicateAdapterKey is returned when an adapter key is registered twice.
	ErrDuplicateAdapterKey = errors.New("pricing: duplicate adapter key")
	// ErrInvalidAdapter is returned for nil adapters or adapters without a key.
	ErrInvalidAdapter = errors.New("pricing: invalid adapter")
	// ErrInvalidContext signals a missing or malformed pricing context. It aborts the whole run.
	ErrInvalidContext = errors.New("pricing: invalid context")
	// ErrAdapterPanic wraps a panic recovered from an adapter calculation.
	ErrAdapterPanic = errors.New("pricing: adapter panicked")
)

// Context is implemented by every domain pricing context.
type Context interface {
	// Validate reports precondition faults such as a missing currency.
	Validate() error
	CurrencyCode() string
	// SheetQuantity is the number of units the resulting sheet prices.
	SheetQuantity() int
}

// Scoper lets a context hand each adapter its own view, e.g. only the
// discounts that are configured for that adapter.
type Scoper[C any] interface {
	ScopeFor(ctx context.Context, adapterKey string, calculation *Sheet) C
}

// Adapter is one named, versioned calculation step of a registry.
type Adapter[C any] interface {
	Key() string
	Label() string
	Version() string
	// OrderIndex sorts adapters ascending inside a registry.
	OrderIndex() int
	IsActivatedFor(pctx C) bool
	// Calculate receives the rows produced by earlier adapters and returns the rows to append.
	Calculate(ctx context.Context, pctx C, prior []Row) ([]Row, error)
}

// Descriptor carries the static identity of an adapter and can be embedded
// by implementations.
type Descriptor struct {
	AdapterKey     string
	AdapterLabel   string
	AdapterVersion string
	Index          int
}

// Key implements Adapter.
func (d Descriptor) Key() string { return d.AdapterKey }

// Label implements Adapter.
func (d Descriptor) Label() string { return d.AdapterLabel }

// Version implements Adapter.
func (d Descriptor) Version() string { return d.AdapterVersion }

// OrderIndex implements Adapter.
func (d Descriptor) OrderIndex() int { return d.Index }

// Meta returns row metadata naming this adapter.
func (d Descriptor) Meta() map[string]any {
	return map[string]any{MetaAdapter: d.AdapterKey}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// ValidateStruct runs struct tag validation on a pricing context.
func ValidateStruct(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(v)
}
