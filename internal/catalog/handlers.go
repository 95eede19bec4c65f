package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foodsafe/storefront/internal/common"
)

// Handler serves the catalog.
type Handler struct {
	Catalog *Static
}

// Routes mounts the product endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{slug}", h.Get)
}

// List handles GET /products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusOK, h.Catalog.Products())
}

// Get handles GET /products/{slug}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.ProductBySlug(chi.URLParam(r, "slug"))
	if errors.Is(err, ErrProductNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.Data(w, http.StatusOK, p)
}
