package pricing

import "github.com/shopspring/decimal"

// Rules holds the tax and shipping constants for the canonical market.
type Rules struct {
	Currency          string
	DefaultCountry    string
	UKVATRate         Money
	UKFreeThreshold   Money
	UKStandardCost    Money
	InternationalCost Money
}

// DefaultRules returns the storefront's pricing constants: GBP, 20% UK VAT,
// free UK shipping from £50.00, £5.99 UK standard and £15.99 international.
func DefaultRules() Rules {
	return Rules{
		Currency:          "GBP",
		DefaultCountry:    "GB",
		UKVATRate:         decimal.RequireFromString("0.20"),
		UKFreeThreshold:   decimal.RequireFromString("50.00"),
		UKStandardCost:    decimal.RequireFromString("5.99"),
		InternationalCost: decimal.RequireFromString("15.99"),
	}
}

// ResolveCountry returns the normalised country, or the default market when the
// input is blank.
func (r Rules) ResolveCountry(country string) string {
	c := NormalizeCountry(country)
	if c == "" {
		c = NormalizeCountry(r.DefaultCountry)
	}
	if c == "" {
		c = "GB"
	}
	return c
}
