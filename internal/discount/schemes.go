package discount

import (
	"context"
	"slices"
	"strings"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// PercentageCode grants Rate on the listed pricing adapters when Code is redeemed.
type PercentageCode struct {
	pricing.Descriptor
	Code               string
	Rate               float64
	PricingAdapterKeys []string
}

func (a *PercentageCode) IsManualAdditionAllowed() bool { return false }
func (a *PercentageCode) IsManualRemovalAllowed() bool  { return true }

func (a *PercentageCode) IsValidForSystemTriggering(context.Context, Context) bool { return false }

func (a *PercentageCode) IsValidForCodeTriggering(_ context.Context, _ Context, code string) bool {
	return a.Code != "" && strings.EqualFold(strings.TrimSpace(code), a.Code)
}

func (a *PercentageCode) DiscountForPricingAdapterKey(_ context.Context, _ Context, key string, _ *pricing.Sheet) (pricing.DiscountConfiguration, bool) {
	if !slices.Contains(a.PricingAdapterKeys, key) {
		return pricing.DiscountConfiguration{}, false
	}
	return pricing.RateOf(a.Rate), true
}

// FixedAmountCode grants Amount minor units in Currency when Code is
// redeemed and the items reach MinItemsTotal.
type FixedAmountCode struct {
	pricing.Descriptor
	Code               string
	Amount             int64
	Currency           string
	MinItemsTotal      int64
	PricingAdapterKeys []string
}

func (a *FixedAmountCode) IsManualAdditionAllowed() bool { return false }
func (a *FixedAmountCode) IsManualRemovalAllowed() bool  { return true }

func (a *FixedAmountCode) IsValidForSystemTriggering(context.Context, Context) bool { return false }

func (a *FixedAmountCode) IsValidForCodeTriggering(_ context.Context, dctx Context, code string) bool {
	if a.Code == "" || !strings.EqualFold(strings.TrimSpace(code), a.Code) {
		return false
	}
	if a.Currency != "" && !strings.EqualFold(a.Currency, dctx.Currency) {
		return false
	}
	return dctx.ItemsTotal >= a.MinItemsTotal
}

func (a *FixedAmountCode) DiscountForPricingAdapterKey(_ context.Context, _ Context, key string, _ *pricing.Sheet) (pricing.DiscountConfiguration, bool) {
	if !slices.Contains(a.PricingAdapterKeys, key) {
		return pricing.DiscountConfiguration{}, false
	}
	return pricing.FixedOf(a.Amount), true
}

// TagRate is attached automatically while the customer carries Tag.
type TagRate struct {
	pricing.Descriptor
	Tag                string
	Rate               float64
	PricingAdapterKeys []string
}

func (a *TagRate) IsManualAdditionAllowed() bool { return false }
func (a *TagRate) IsManualRemovalAllowed() bool  { return false }

func (a *TagRate) IsValidForSystemTriggering(_ context.Context, dctx Context) bool {
	return a.Tag != "" && slices.Contains(dctx.CustomerTags, a.Tag)
}

func (a *TagRate) IsValidForCodeTriggering(context.Context, Context, string) bool { return false }

func (a *TagRate) DiscountForPricingAdapterKey(_ context.Context, _ Context, key string, _ *pricing.Sheet) (pricing.DiscountConfiguration, bool) {
	if !slices.Contains(a.PricingAdapterKeys, key) {
		return pricing.DiscountConfiguration{}, false
	}
	return pricing.RateOf(a.Rate), true
}

// ManualRate can be added and removed by staff.
type ManualRate struct {
	pricing.Descriptor
	Rate               float64
	PricingAdapterKeys []string
}

func (a *ManualRate) IsManualAdditionAllowed() bool { return true }
func (a *ManualRate) IsManualRemovalAllowed() bool  { return true }

func (a *ManualRate) IsValidForSystemTriggering(context.Context, Context) bool { return false }

func (a *ManualRate) IsValidForCodeTriggering(context.Context, Context, string) bool { return false }

func (a *ManualRate) DiscountForPricingAdapterKey(_ context.Context, _ Context, key string, _ *pricing.Sheet) (pricing.DiscountConfiguration, bool) {
	if !slices.Contains(a.PricingAdapterKeys, key) {
		return pricing.DiscountConfiguration{}, false
	}
	return pricing.RateOf(a.Rate), true
}
