package vat

import (
	"net/http"

	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/obs"
)

// ValidateHandler handles POST /vat/validate {"vatNumber": "..."}. Format failures are
// a normal 200 response with isValid=false so forms can show inline feedback.
func ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VatNumber string `json:"vatNumber"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	res := Validate(payload.VatNumber)
	if obs.VATValidationsTotal != nil {
		label := "invalid"
		if res.IsValid {
			label = "valid"
		}
		obs.VATValidationsTotal.WithLabelValues(label).Inc()
	}
	body := map[string]any{
		"isValid": res.IsValid,
		"country": res.Country,
		"error":   res.Error,
	}
	if res.IsValid {
		body["normalized"] = res.Normalized
		body["formatted"] = Format(res.Normalized)
	}
	common.Data(w, http.StatusOK, body)
}
