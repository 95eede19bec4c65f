package checkout

import (
	"errors"
	"net/http"

	"github.com/foodsafe/storefront/internal/cart"
	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/lock"
	"github.com/foodsafe/storefront/internal/order"
)

// Handler exposes POST /checkout.
type Handler struct {
	Svc *Service
}

// Checkout submits the session cart with the customer's details.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
		return
	}
	var payload order.CustomerDetails
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Submit(r.Context(), sid, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "CART_EMPTY", "cart is empty", nil)
	case errors.Is(err, ErrPricingDrift):
		common.JSONError(w, http.StatusConflict, "PRICING_CHANGED", "prices changed, review the cart", nil)
	case errors.Is(err, ErrInProgress):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_IN_PROGRESS", "checkout already in progress", nil)
	case errors.Is(err, cart.ErrNoSession):
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
	case errors.Is(err, lock.ErrTimeout):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry", nil)
	default:
		common.WriteError(w, err)
	}
}
