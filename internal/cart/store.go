// Package cart holds the shopper's basket and keeps its totals consistent.
//
// Store is a single-writer value: every mutation runs a full recompute of
// subtotal, shipping, tax and total before it returns. Service adapts it to a
// multi-replica HTTP server by giving each session its own Store, loaded and
// saved under a per-session lock.
package cart

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/foodsafe/storefront/internal/pricing"
)

// LineItem is one variant in the cart. VariantID is unique within a cart.
type LineItem struct {
	ProductID     string           `json:"productId"`
	ProductName   string           `json:"productName"`
	ProductImage  string           `json:"productImage,omitempty"`
	VariantID     string           `json:"variantId"`
	VariantName   string           `json:"variantName"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	Quantity      int              `json:"quantity"`
	PricePerLabel *decimal.Decimal `json:"pricePerLabel,omitempty"`
	CategoryTags  []string         `json:"categoryTags,omitempty"`
}

// LineTotal is unit price times quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return pricing.Round2(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
}

func (li LineItem) clone() LineItem {
	out := li
	if li.PricePerLabel != nil {
		v := *li.PricePerLabel
		out.PricePerLabel = &v
	}
	out.CategoryTags = slices.Clone(li.CategoryTags)
	return out
}

// State is the cart plus its derived totals, all in the canonical currency.
// CustomerCountry and VatNumber keep exactly what the caller supplied; nil
// country means the default market.
type State struct {
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	ShippingFree    bool            `json:"shippingFree"`
	ShippingReason  string          `json:"shippingReason,omitempty"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	CustomerCountry *string         `json:"customerCountry"`
	VatNumber       *string         `json:"vatNumber"`
	IsVatExempt     bool            `json:"isVatExempt"`
	ExemptionReason string          `json:"exemptionReason,omitempty"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Items = make([]LineItem, len(s.Items))
	for i, item := range s.Items {
		out.Items[i] = item.clone()
	}
	out.CustomerCountry = cloneString(s.CustomerCountry)
	out.VatNumber = cloneString(s.VatNumber)
	return out
}

// IsEmpty reports whether the cart has no line items.
func (s State) IsEmpty() bool { return len(s.Items) == 0 }

// ItemCount is the total quantity across lines.
func (s State) ItemCount() int {
	n := 0
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// Country is the market the totals were computed for.
func (s State) Country(rules pricing.Rules) string {
	if s.CustomerCountry == nil {
		return rules.ResolveCountry("")
	}
	return rules.ResolveCountry(*s.CustomerCountry)
}

// Store owns one cart. It is not safe for concurrent use.
type Store struct {
	rules pricing.Rules
	state State
}

// NewStore returns an empty cart priced with rules.
func NewStore(rules pricing.Rules) *Store {
	return &Store{rules: rules, state: initialState(rules)}
}

// Restore rebuilds a store from a previously saved state and recomputes its
// totals under the current rules.
func Restore(rules pricing.Rules, saved State) *Store {
	s := &Store{rules: rules, state: saved.Clone()}
	if s.state.Items == nil {
		s.state.Items = []LineItem{}
	}
	s.recompute()
	return s
}

func initialState(rules pricing.Rules) State {
	country := rules.DefaultCountry
	return State{
		Items:           []LineItem{},
		Subtotal:        decimal.Zero,
		ShippingCost:    decimal.Zero,
		TaxRate:         rules.UKVATRate,
		TaxAmount:       decimal.Zero,
		Total:           decimal.Zero,
		Currency:        rules.Currency,
		CustomerCountry: &country,
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	return s.state.Clone()
}

// AddItem appends item with quantity 1, or bumps the quantity of an existing
// line by one. A re-add never changes the stored price or names.
func (s *Store) AddItem(item LineItem) {
	if i := s.indexOf(item.VariantID); i >= 0 {
		s.state.Items[i].Quantity++
	} else {
		added := item.clone()
		added.Quantity = 1
		s.state.Items = append(s.state.Items, added)
	}
	s.recompute()
}

// RemoveItem drops the line for variantID. Unknown ids are ignored.
func (s *Store) RemoveItem(variantID string) {
	s.state.Items = slices.DeleteFunc(s.state.Items, func(li LineItem) bool {
		return li.VariantID == variantID
	})
	s.recompute()
}

// UpdateQuantity sets the quantity in place; qty <= 0 removes the line.
func (s *Store) UpdateQuantity(variantID string, qty int) {
	if qty <= 0 {
		s.RemoveItem(variantID)
		return
	}
	if i := s.indexOf(variantID); i >= 0 {
		s.state.Items[i].Quantity = qty
	}
	s.recompute()
}

// SetUnitPrice replaces the price of an existing line, e.g. after a catalog
// price change. Unknown ids are ignored.
func (s *Store) SetUnitPrice(variantID string, price decimal.Decimal) {
	if i := s.indexOf(variantID); i >= 0 {
		s.state.Items[i].UnitPrice = price
		s.recompute()
	}
}

// SetCountry stores the caller's country (nil for the default market).
func (s *Store) SetCountry(country *string) {
	s.state.CustomerCountry = cloneString(country)
	s.recompute()
}

// SetVatNumber stores the VAT number (nil to remove it).
func (s *Store) SetVatNumber(vatNumber *string) {
	s.state.VatNumber = cloneString(vatNumber)
	s.recompute()
}

// Clear resets the cart to its initial state.
func (s *Store) Clear() {
	s.state = initialState(s.rules)
}

func (s *Store) indexOf(variantID string) int {
	return slices.IndexFunc(s.state.Items, func(li LineItem) bool {
		return li.VariantID == variantID
	})
}

// recompute derives every total from the items; nothing is patched
// incrementally. An empty cart carries no shipping charge.
func (s *Store) recompute() {
	lines := make([]pricing.Line, 0, len(s.state.Items))
	for _, item := range s.state.Items {
		lines = append(lines, pricing.Line{UnitPrice: item.UnitPrice, Qty: item.Quantity})
	}
	country := ""
	if s.state.CustomerCountry != nil {
		country = *s.state.CustomerCountry
	}
	vatNumber := ""
	if s.state.VatNumber != nil {
		vatNumber = strings.TrimSpace(*s.state.VatNumber)
	}

	var summary pricing.Summary
	if len(lines) == 0 {
		resolved := s.rules.ResolveCountry(country)
		summary = pricing.Summary{
			Subtotal: decimal.Zero,
			Shipping: pricing.ShippingResult{Cost: decimal.Zero},
			Tax:      s.rules.ComputeTax(decimal.Zero, resolved, vatNumber),
			Total:    decimal.Zero,
		}
	} else {
		summary = s.rules.Compute(lines, country, vatNumber)
	}

	s.state.Subtotal = summary.Subtotal
	s.state.ShippingCost = summary.Shipping.Cost
	s.state.ShippingFree = summary.Shipping.IsFree
	s.state.ShippingReason = summary.Shipping.Reason
	s.state.TaxRate = summary.Tax.TaxRate
	s.state.TaxAmount = summary.Tax.TaxAmount
	s.state.Total = summary.Total
	s.state.IsVatExempt = summary.Tax.IsVatExempt
	s.state.ExemptionReason = summary.Tax.ExemptionReason
	s.state.Currency = s.rules.Currency
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
