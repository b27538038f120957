package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

// Manager attaches and detaches the discounts of orders.
type Manager struct {
	Director *Director
	Store    Store
	Now      func() time.Time
	NewID    func() string
}

// List returns the discounts of an order, oldest first.
func (m *Manager) List(ctx context.Context, orderID string) ([]Discount, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.Store.List(ctx, orderID)
}

// AddManual attaches a discount on behalf of a user.
func (m *Manager) AddManual(ctx context.Context, dctx Context, discountKey string) (Discount, error) {
	if err := m.ready(); err != nil {
		return Discount{}, err
	}
	adapter, ok := m.Director.Adapter(discountKey)
	if !ok {
		return Discount{}, fmt.Errorf("%w: %s", ErrAdapterNotFound, discountKey)
	}
	if !adapter.IsManualAdditionAllowed() {
		return Discount{}, ErrManualAdditionNotAllowed
	}
	return m.attach(ctx, dctx.OrderID, adapter.Key(), TriggerUser, "")
}

// RedeemCode attaches the discount whose adapter accepts code.
func (m *Manager) RedeemCode(ctx context.Context, dctx Context, code string) (Discount, error) {
	if err := m.ready(); err != nil {
		return Discount{}, err
	}
	code = normalizeCode(code)
	adapter, ok := m.Director.ResolveForCode(ctx, dctx, code)
	if !ok {
		return Discount{}, ErrCodeNotFound
	}
	return m.attach(ctx, dctx.OrderID, adapter.Key(), TriggerCode, code)
}

// Remove detaches a discount on behalf of a user. System discounts and
// schemes that forbid it cannot be removed.
func (m *Manager) Remove(ctx context.Context, orderID, discountID string) (Discount, error) {
	if err := m.ready(); err != nil {
		return Discount{}, err
	}
	attached, err := m.Store.List(ctx, orderID)
	if err != nil {
		return Discount{}, err
	}
	var target *Discount
	for i := range attached {
		if attached[i].ID == discountID {
			target = &attached[i]
			break
		}
	}
	if target == nil {
		return Discount{}, ErrDiscountNotFound
	}
	if target.Trigger == TriggerSystem {
		return Discount{}, ErrManualRemovalNotAllowed
	}
	if adapter, ok := m.Director.Adapter(target.DiscountKey); ok && !adapter.IsManualRemovalAllowed() {
		return Discount{}, ErrManualRemovalNotAllowed
	}
	return m.detach(ctx, *target, "user")
}

// Reconcile drops discounts that are no longer valid for the order and
// attaches system discounts whose predicate holds. It returns the resulting
// discounts, oldest first.
func (m *Manager) Reconcile(ctx context.Context, dctx Context) ([]Discount, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	current, err := m.Store.List(ctx, dctx.OrderID)
	if err != nil {
		return nil, err
	}

	kept := make([]Discount, 0, len(current))
	system := make(map[string]bool)
	for _, d := range current {
		if m.stillValid(ctx, dctx, d) {
			kept = append(kept, d)
			if d.Trigger == TriggerSystem {
				system[d.DiscountKey] = true
			}
			continue
		}
		if _, err := m.detach(ctx, d, "invalid"); err != nil && !errors.Is(err, ErrDiscountNotFound) {
			return nil, err
		}
	}

	for _, adapter := range m.Director.Adapters() {
		if system[adapter.Key()] || !adapter.IsValidForSystemTriggering(ctx, dctx) {
			continue
		}
		d, err := m.attach(ctx, dctx.OrderID, adapter.Key(), TriggerSystem, "")
		if err != nil {
			return nil, err
		}
		kept = append(kept, d)
	}
	SortByCreation(kept)
	return kept, nil
}

func (m *Manager) stillValid(ctx context.Context, dctx Context, d Discount) bool {
	adapter, ok := m.Director.Adapter(d.DiscountKey)
	if !ok {
		return false
	}
	switch d.Trigger {
	case TriggerSystem:
		return adapter.IsValidForSystemTriggering(ctx, dctx)
	case TriggerCode:
		return adapter.IsValidForCodeTriggering(ctx, dctx, d.Code)
	case TriggerUser:
		return adapter.IsManualAdditionAllowed()
	default:
		return false
	}
}

func (m *Manager) attach(ctx context.Context, orderID, key string, trigger Trigger, code string) (Discount, error) {
	d := Discount{
		ID:          m.newID(),
		OrderID:     orderID,
		DiscountKey: key,
		Trigger:     trigger,
		Code:        code,
		Created:     m.now(),
	}
	if err := m.Store.Add(ctx, d); err != nil {
		return Discount{}, err
	}
	obs.CountDiscountLifecycle("attach", string(trigger))
	zerolog.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("discount_id", d.ID).
		Str("discount_key", key).
		Str("trigger", string(trigger)).
		Msg("discount_attached")
	return d, nil
}

func (m *Manager) detach(ctx context.Context, d Discount, reason string) (Discount, error) {
	removed, err := m.Store.Remove(ctx, d.OrderID, d.ID)
	if err != nil {
		return Discount{}, err
	}
	obs.CountDiscountLifecycle("detach", string(d.Trigger))
	zerolog.Ctx(ctx).Info().
		Str("order_id", d.OrderID).
		Str("discount_id", d.ID).
		Str("discount_key", d.DiscountKey).
		Str("reason", reason).
		Msg("discount_detached")
	return removed, nil
}

func (m *Manager) ready() error {
	if m == nil || m.Director == nil || m.Store == nil {
		return errors.New("discount manager not configured")
	}
	return nil
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
