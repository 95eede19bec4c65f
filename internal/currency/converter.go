// Package currency converts canonical prices into display currencies using
// externally supplied exchange rates.
package currency

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/pricing"
)

var (
	penny      = decimal.New(1, -2)
	ninetyNine = decimal.RequireFromString("0.99")
	five       = decimal.NewFromInt(5)
	upperBand  = decimal.RequireFromString("0.95")
	middleBand = decimal.RequireFromString("0.45")
	lowerBand  = decimal.RequireFromString("0.05")
)

// Converter turns canonical-currency prices into display prices.
type Converter struct {
	Canonical string
	Logger    zerolog.Logger
}

func (c Converter) canonical() string {
	if code := normalizeCode(c.Canonical); code != "" {
		return code
	}
	return "GBP"
}

// Convert multiplies price by rates[target] and applies FriendlyRound. The
// canonical currency is returned untouched. A missing rate is logged and the
// canonical price is returned as is.
func (c Converter) Convert(price decimal.Decimal, target string, rates map[string]decimal.Decimal) decimal.Decimal {
	rate, ok := c.rate(target, rates)
	if !ok {
		return price
	}
	return FriendlyRound(price.Mul(rate))
}

// Exact converts like Convert but rounds half-up to pennies instead of to a
// price point. Used for charges such as shipping and tax that are not list
// prices.
func (c Converter) Exact(amount decimal.Decimal, target string, rates map[string]decimal.Decimal) decimal.Decimal {
	rate, ok := c.rate(target, rates)
	if !ok {
		return amount
	}
	return pricing.Round2(amount.Mul(rate))
}

func (c Converter) rate(target string, rates map[string]decimal.Decimal) (decimal.Decimal, bool) {
	target = normalizeCode(target)
	if target == "" || target == c.canonical() {
		return decimal.Decimal{}, false
	}
	rate, ok := rates[target]
	if !ok || !rate.IsPositive() {
		c.Logger.Warn().Str("currency", target).Str("canonical", c.canonical()).Msg("exchange rate missing, showing canonical price")
		if obs.FXFallbackTotal != nil {
			obs.FXFallbackTotal.WithLabelValues(target).Inc()
		}
		return decimal.Decimal{}, false
	}
	return rate, true
}

// FriendlyRound snaps a converted amount to a psychological price point. The
// buckets are evaluated in order:
//
//	amount < 5            -> ceil(amount) - 0.01
//	fraction > 0.95       -> ceil(amount) - 0.01
//	fraction in (.45,.95] -> floor(amount) + 0.99
//	fraction < 0.05       -> nearest whole number
//	otherwise             -> floor(amount) + 0.99
//
// Non-positive amounts are returned as zero.
func FriendlyRound(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	floor := amount.Floor()
	frac := amount.Sub(floor)
	switch {
	case amount.LessThan(five):
		return amount.Ceil().Sub(penny)
	case frac.GreaterThan(upperBand):
		return amount.Ceil().Sub(penny)
	case frac.GreaterThan(middleBand):
		return floor.Add(ninetyNine)
	case frac.LessThan(lowerBand):
		return amount.Round(0)
	default:
		return floor.Add(ninetyNine)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
