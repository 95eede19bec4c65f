package cart

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/currency"
	"github.com/foodsafe/storefront/internal/lock"
	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/pricing"
	"github.com/foodsafe/storefront/internal/vat"
)

// RatesSource supplies the current exchange rate snapshot.
type RatesSource interface {
	Current(ctx context.Context) currency.Snapshot
}

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc       *Service
	Rates     RatesSource
	Converter currency.Converter
}

// Routes mounts the cart endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Clear)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{variantId}", h.UpdateItem)
	r.Delete("/items/{variantId}", h.RemoveItem)
	r.Put("/country", h.SetCountry)
	r.Put("/vat-number", h.SetVatNumber)
}

// Get returns the cart, with a display-currency block when ?currency= is set.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.Get(r.Context(), sid)
	h.respond(w, r, st, err)
}

// AddItem handles POST /items {"variantId": "..."}.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VariantID string `json:"variantId"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.AddItem(r.Context(), sid, payload.VariantID)
	h.respond(w, r, st, err)
}

// UpdateItem handles PATCH /items/{variantId} {"quantity": n}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if payload.Quantity == nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity is required", nil)
		return
	}
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.UpdateQuantity(r.Context(), sid, chi.URLParam(r, "variantId"), *payload.Quantity)
	h.respond(w, r, st, err)
}

// RemoveItem handles DELETE /items/{variantId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.RemoveItem(r.Context(), sid, chi.URLParam(r, "variantId"))
	h.respond(w, r, st, err)
}

// SetCountry handles PUT /country {"country": "DE"}; null resets to the
// default market.
func (h *Handler) SetCountry(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Country *string `json:"country"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if payload.Country != nil {
		code := pricing.NormalizeCountry(*payload.Country)
		if !isCountryCode(code) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_COUNTRY", "country must be an ISO 3166 alpha-2 code", nil)
			return
		}
		payload.Country = &code
	}
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.SetCountry(r.Context(), sid, payload.Country)
	h.respond(w, r, st, err)
}

// SetVatNumber handles PUT /vat-number {"vatNumber": "..."}; null removes it.
// A number failing format validation is rejected and the cart is unchanged.
func (h *Handler) SetVatNumber(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VatNumber *string `json:"vatNumber"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	var number *string
	if payload.VatNumber != nil && strings.TrimSpace(*payload.VatNumber) != "" {
		res := vat.Validate(*payload.VatNumber)
		recordVAT(res)
		if !res.IsValid {
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_VAT_NUMBER", res.Error, res)
			return
		}
		number = &res.Normalized
	}
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.SetVatNumber(r.Context(), sid, number)
	h.respond(w, r, st, err)
}

// Clear handles DELETE /.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sid, _ := common.SessionID(r.Context())
	st, err := h.Svc.Clear(r.Context(), sid)
	h.respond(w, r, st, err)
}

// View is the cart response body.
type View struct {
	State
	ItemCount int      `json:"itemCount"`
	Display   *Display `json:"display,omitempty"`
}

// Display shows the cart in a shopper-selected currency. It is derived on every
// read and never stored.
type Display struct {
	Currency     string          `json:"currency"`
	RatesSource  string          `json:"ratesSource"`
	Items        []DisplayLine   `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	TaxAmount    decimal.Decimal `json:"taxAmount"`
	Total        decimal.Decimal `json:"total"`
	Formatted    string          `json:"formattedTotal"`
}

// DisplayLine is one converted line.
type DisplayLine struct {
	VariantID string          `json:"variantId"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, st State, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	view := View{State: st, ItemCount: st.ItemCount()}
	if target := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))); target != "" && h.Rates != nil {
		view.Display = h.display(r.Context(), st, target)
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) display(ctx context.Context, st State, target string) *Display {
	snap := h.Rates.Current(ctx)
	if target == st.Currency {
		return nil
	}
	if _, ok := snap.Rates[target]; !ok {
		// logs and counts the fallback
		h.Converter.Convert(st.Total, target, snap.Rates)
		return nil
	}
	// Only list prices get price-point rounding. Line totals are derived from
	// the shown unit price, and the shown total is the sum of the shown parts.
	d := &Display{
		Currency:     target,
		RatesSource:  snap.Source,
		Items:        make([]DisplayLine, 0, len(st.Items)),
		Subtotal:     decimal.Zero,
		ShippingCost: h.Converter.Exact(st.ShippingCost, target, snap.Rates),
		TaxAmount:    h.Converter.Exact(st.TaxAmount, target, snap.Rates),
	}
	for _, li := range st.Items {
		unit := h.Converter.Convert(li.UnitPrice, target, snap.Rates)
		line := pricing.Round2(unit.Mul(decimal.NewFromInt(int64(li.Quantity))))
		d.Subtotal = d.Subtotal.Add(line)
		d.Items = append(d.Items, DisplayLine{VariantID: li.VariantID, UnitPrice: unit, LineTotal: line})
	}
	d.Total = d.Subtotal.Add(d.ShippingCost).Add(d.TaxAmount)
	d.Formatted = pricing.FormatMoney(target, d.Total)
	return d
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrVariantNotFound):
		common.JSONError(w, http.StatusNotFound, "VARIANT_NOT_FOUND", "variant not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid input", nil)
	case errors.Is(err, ErrNoSession):
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
	case errors.Is(err, lock.ErrTimeout):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry", nil)
	default:
		common.WriteError(w, err)
	}
}

func recordVAT(res vat.Result) {
	if obs.VATValidationsTotal == nil {
		return
	}
	result := "valid"
	if !res.IsValid {
		result = "invalid"
	}
	obs.VATValidationsTotal.WithLabelValues(result).Inc()
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
