package pricing

import (
	"strings"

	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

// Money is an amount in major units (pounds, euros, ...) of a single currency.
type Money = decimal.Decimal

// Round2 rounds half-up to two decimal places. Amounts handled here are never
// negative, so decimal's half-away-from-zero rounding is equivalent.
func Round2(v Money) Money {
	return v.Round(2)
}

// MustMoney parses a decimal literal and panics on malformed input. Intended for
// constants and tests.
func MustMoney(value string) Money {
	return decimal.RequireFromString(value)
}

// NormalizeCountry trims and upper-cases an ISO-3166 alpha-2 code.
func NormalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

// IsUK reports whether the code designates the United Kingdom. Both the ISO code
// GB and the colloquial UK are accepted.
func IsUK(country string) bool {
	switch NormalizeCountry(country) {
	case "GB", "UK":
		return true
	default:
		return false
	}
}

var currencySymbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
	"AUD": "A$",
	"CAD": "C$",
	"NZD": "NZ$",
	"CHF": "CHF ",
	"NOK": "kr ",
	"SEK": "kr ",
	"DKK": "kr ",
}

// CurrencySymbol returns the display symbol for an ISO-4217 code, falling back
// to the code itself followed by a space.
func CurrencySymbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	return code + " "
}

// FormatMoney renders an amount for display, e.g. £1,234.50.
func FormatMoney(currency string, amount Money) string {
	ac := &accounting.Accounting{
		Symbol:    CurrencySymbol(currency),
		Precision: 2,
		Thousand:  ",",
		Decimal:   ".",
	}
	return ac.FormatMoneyDecimal(amount)
}
