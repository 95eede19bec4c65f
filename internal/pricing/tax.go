package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// ReasonReverseCharge marks a B2B sale outside the UK with a VAT number.
	ReasonReverseCharge = "reverse charge"
	// ReasonZeroRatedExport marks a sale outside the UK without a VAT number.
	ReasonZeroRatedExport = "zero-rated export"
)

// TaxResult is the outcome of a single tax computation.
type TaxResult struct {
	TaxRate         Money  `json:"taxRate"`
	TaxAmount       Money  `json:"taxAmount"`
	Total           Money  `json:"total"`
	IsVatExempt     bool   `json:"isVatExempt"`
	ExemptionReason string `json:"exemptionReason,omitempty"`
}

// ComputeTax applies the VAT rules in order, first match wins:
// UK customers pay UK VAT, non-UK customers with a VAT number are reverse
// charged, everyone else is a zero-rated export. The VAT number is only checked
// for presence here; format validation lives in the vat package.
//
// TaxAmount and Total are each rounded from the subtotal, so Total-subtotal can
// differ from TaxAmount by one penny.
func (r Rules) ComputeTax(subtotal Money, country, vatNumber string) TaxResult {
	if IsUK(country) {
		return TaxResult{
			TaxRate:   r.UKVATRate,
			TaxAmount: Round2(subtotal.Mul(r.UKVATRate)),
			Total:     Round2(subtotal.Mul(decimal.NewFromInt(1).Add(r.UKVATRate))),
		}
	}
	reason := ReasonZeroRatedExport
	if strings.TrimSpace(vatNumber) != "" {
		reason = ReasonReverseCharge
	}
	return TaxResult{
		TaxRate:         decimal.Zero,
		TaxAmount:       decimal.Zero,
		Total:           subtotal,
		IsVatExempt:     true,
		ExemptionReason: reason,
	}
}

// ComputeTax evaluates the default rules.
func ComputeTax(subtotal Money, country, vatNumber string) TaxResult {
	return DefaultRules().ComputeTax(subtotal, country, vatNumber)
}
