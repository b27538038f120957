package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrChargeNotFound is returned when no charge is configured for a lookup.
var ErrChargeNotFound = errors.New("pricing: charge not found")

// Charge is a configured amount such as a list price or a provider fee.
type Charge struct {
	Amount     int64 `json:"amount"`
	IsNetPrice bool  `json:"isNetPrice"`
	IsTaxable  bool  `json:"isTaxable"`
}

// ChargeSource looks up the charge configured for an entity in a currency
// and country.
type ChargeSource interface {
	Charge(ctx context.Context, id, currency, country string) (Charge, error)
}

// ChargeKey identifies an entry of a ChargeTable. An empty Country matches
// every country.
type ChargeKey struct {
	ID       string
	Currency string
	Country  string
}

// ChargeTable is an in-memory ChargeSource.
type ChargeTable map[ChargeKey]Charge

// Charge implements ChargeSource. A country specific entry wins over the
// country-less one.
func (t ChargeTable) Charge(_ context.Context, id, currency, country string) (Charge, error) {
	if c, ok := t[ChargeKey{ID: id, Currency: currency, Country: country}]; ok {
		return c, nil
	}
	if c, ok := t[ChargeKey{ID: id, Currency: currency}]; ok {
		return c, nil
	}
	return Charge{}, fmt.Errorf("%w: %s in %s/%s", ErrChargeNotFound, id, currency, country)
}

// RedisCharges reads charges from one Redis hash. Fields are
// "<id>:<currency>:<country>" or "<id>:<currency>" and hold JSON charges.
type RedisCharges struct {
	R   *redis.Client
	Key string
}

func chargeField(k ChargeKey) string {
	if k.Country == "" {
		return k.ID + ":" + k.Currency
	}
	return k.ID + ":" + k.Currency + ":" + k.Country
}

// Set stores a charge.
func (s RedisCharges) Set(ctx context.Context, k ChargeKey, c Charge) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.R.HSet(ctx, s.Key, chargeField(k), data).Err()
}

// Charge implements ChargeSource with the same fallback as ChargeTable.
func (s RedisCharges) Charge(ctx context.Context, id, currency, country string) (Charge, error) {
	if s.R == nil {
		return Charge{}, errors.New("pricing: charge store not configured")
	}
	fields := []string{
		chargeField(ChargeKey{ID: id, Currency: currency, Country: country}),
		chargeField(ChargeKey{ID: id, Currency: currency}),
	}
	values, err := s.R.HMGet(ctx, s.Key, fields...).Result()
	if err != nil {
		return Charge{}, err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var c Charge
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Charge{}, fmt.Errorf("pricing: decode charge %s: %w", id, err)
		}
		return c, nil
	}
	return Charge{}, fmt.Errorf("%w: %s in %s/%s", ErrChargeNotFound, id, currency, country)
}

// TaxRates maps ISO country codes to a VAT rate.
type TaxRates map[string]float64

// Rate returns the rate configured for country.
func (r TaxRates) Rate(country string) (float64, bool) {
	rate, ok := r[strings.ToUpper(country)]
	return rate, ok && rate > 0
}

// ParseTaxRates parses "CH:0.081,DE:0.19".
func ParseTaxRates(raw string) (TaxRates, error) {
	rates := TaxRates{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		country, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tax rate %q", part)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("invalid tax rate %q", part)
		}
		rates[strings.ToUpper(strings.TrimSpace(country))] = rate
	}
	return rates, nil
}
