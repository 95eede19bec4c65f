package currency

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/pricing"
)

// Handler exposes exchange rates over HTTP.
type Handler struct {
	Cache     *Cache
	Converter Converter
}

// Rates returns the current snapshot.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "rates cache not configured", nil)
		return
	}
	snap := h.Cache.Current(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"base":       snap.Base,
			"date":       snap.Date,
			"source":     snap.Source,
			"stale":      snap.Stale,
			"rates":      snap.Rates,
			"currencies": snap.Currencies(),
		},
	})
}

// Convert converts ?amount= from the canonical currency into ?to=.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "rates cache not configured", nil)
		return
	}
	q := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil || amount.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be a non-negative decimal", nil)
		return
	}
	target := normalizeCode(q.Get("to"))
	if len(target) != 3 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "to must be a three-letter currency code", nil)
		return
	}
	snap := h.Cache.Current(r.Context())
	converted := h.Converter.Convert(amount, target, snap.Rates)
	shown := target
	if _, ok := snap.Rates[target]; !ok {
		shown = h.Converter.canonical()
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"amount":    amount,
			"from":      h.Converter.canonical(),
			"currency":  shown,
			"converted": converted,
			"display":   pricing.FormatMoney(shown, converted),
			"source":    snap.Source,
			"stale":     snap.Stale,
		},
	})
}
