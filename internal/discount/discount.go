// Package discount manages the discounts attached to orders and resolves,
// per pricing adapter, the deduction each discount asks for.
package discount

import (
	"cmp"
	"errors"
	"slices"
	"time"
)

var (
	// ErrDuplicateAdapterKey is returned when a discount adapter key is registered twice.
	ErrDuplicateAdapterKey = errors.New("discount: duplicate adapter key")
	// ErrAdapterNotFound is returned when a discount key has no registered adapter.
	ErrAdapterNotFound = errors.New("discount: adapter not found")
	// ErrManualAdditionNotAllowed is returned when a user tries to add a discount the adapter does not allow.
	ErrManualAdditionNotAllowed = errors.New("discount: manual addition not allowed")
	// ErrManualRemovalNotAllowed is returned when a user tries to remove a discount the adapter does not allow.
	ErrManualRemovalNotAllowed = errors.New("discount: manual removal not allowed")
	// ErrCodeNotFound is returned when no adapter accepts a code.
	ErrCodeNotFound = errors.New("discount: code not found")
	// ErrCodeAlreadyRedeemed is returned when the code is already attached to the order.
	ErrCodeAlreadyRedeemed = errors.New("discount: code already redeemed")
	// ErrDiscountNotFound is returned when the discount is not attached to the order.
	ErrDiscountNotFound = errors.New("discount: not found")
)

// Trigger records how a discount got attached.
type Trigger string

const (
	TriggerUser   Trigger = "USER"
	TriggerSystem Trigger = "SYSTEM"
	TriggerCode   Trigger = "CODE"
)

// Discount is one reduction attached to an order. It never stores amounts;
// they are recomputed into calculation rows on every pricing run.
type Discount struct {
	ID          string    `json:"_id"`
	OrderID     string    `json:"orderId"`
	DiscountKey string    `json:"discountKey"`
	Trigger     Trigger   `json:"trigger"`
	Code        string    `json:"code,omitempty"`
	Created     time.Time `json:"created"`
}

// SortByCreation orders discounts oldest first, ties by id.
func SortByCreation(discounts []Discount) {
	slices.SortStableFunc(discounts, func(a, b Discount) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Context is the order state discount predicates look at.
type Context struct {
	OrderID      string
	CustomerID   string
	CustomerTags []string
	Currency     string
	Country      string
	// ItemsTotal is the gross of the order positions.
	ItemsTotal int64
}
