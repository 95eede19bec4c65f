package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ShippingResult is the outcome of a single shipping computation.
type ShippingResult struct {
	Cost   Money  `json:"cost"`
	IsFree bool   `json:"isFree"`
	Reason string `json:"reason,omitempty"`
}

// ComputeShipping prices delivery from the subtotal and destination. UK orders
// ship free at or above the threshold and pay the standard rate below it; every
// other destination pays the international flat rate.
func (r Rules) ComputeShipping(subtotal Money, country string) ShippingResult {
	if !IsUK(country) {
		return ShippingResult{
			Cost:   r.InternationalCost,
			Reason: "international flat rate",
		}
	}
	if subtotal.GreaterThanOrEqual(r.UKFreeThreshold) {
		return ShippingResult{
			Cost:   decimal.Zero,
			IsFree: true,
			Reason: fmt.Sprintf("free UK shipping on orders over %s", FormatMoney(r.Currency, r.UKFreeThreshold)),
		}
	}
	remaining := Round2(r.UKFreeThreshold.Sub(subtotal))
	return ShippingResult{
		Cost:   r.UKStandardCost,
		Reason: fmt.Sprintf("add %s more for free UK shipping", FormatMoney(r.Currency, remaining)),
	}
}

// ComputeShipping evaluates the default rules.
func ComputeShipping(subtotal Money, country string) ShippingResult {
	return DefaultRules().ComputeShipping(subtotal, country)
}
