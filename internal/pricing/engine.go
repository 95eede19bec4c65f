package pricing

import "github.com/shopspring/decimal"

// Line describes a priced line used for totals calculation.
type Line struct {
	UnitPrice Money
	Qty       int
}

// Summary aggregates computed pricing components.
type Summary struct {
	Country  string         `json:"country"`
	Subtotal Money          `json:"subtotal"`
	Shipping ShippingResult `json:"shipping"`
	Tax      TaxResult      `json:"tax"`
	Total    Money          `json:"total"`
	Currency string         `json:"currency"`
}

// Subtotal sums unit price times quantity for every line with a positive
// quantity, rounded to pennies.
func Subtotal(lines []Line) Money {
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return Round2(subtotal)
}

// Compute runs the full pipeline: subtotal, then shipping on the subtotal, then
// tax on subtotal plus shipping. A blank country resolves to the default market.
// Total is the sum of the independently rounded subtotal, shipping and tax.
func (r Rules) Compute(lines []Line, country, vatNumber string) Summary {
	resolved := r.ResolveCountry(country)
	subtotal := Subtotal(lines)
	ship := r.ComputeShipping(subtotal, resolved)
	ship.Cost = Round2(ship.Cost)
	tax := r.ComputeTax(subtotal.Add(ship.Cost), resolved, vatNumber)
	tax.TaxAmount = Round2(tax.TaxAmount)
	return Summary{
		Country:  resolved,
		Subtotal: subtotal,
		Shipping: ship,
		Tax:      tax,
		Total:    Round2(subtotal.Add(ship.Cost).Add(tax.TaxAmount)),
		Currency: r.Currency,
	}
}

// Compute evaluates the default rules.
func Compute(lines []Line, country, vatNumber string) Summary {
	return DefaultRules().Compute(lines, country, vatNumber)
}
