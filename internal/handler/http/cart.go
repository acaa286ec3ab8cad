package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// --- Response DTOs ---

// checkoutResponse carries the URL the buyer is redirected to.
type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sess.Cart.Snapshot()})
}

// SyncCart handles POST /api/v1/cart/sync
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	snap, err := sess.Cart.SyncCart(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: snap})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	result, err := sess.Cart.AddItem(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeMutation(w, result)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{variantId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	variantID, err := pathParam(r, "variantId")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	var req service.UpdateQuantityInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	result, err := sess.Cart.UpdateQuantity(r.Context(), variantID, req.Quantity)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeMutation(w, result)
}

// RemoveItem handles DELETE /api/v1/cart/items/{variantId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	variantID, err := pathParam(r, "variantId")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	sess := sessionFrom(r.Context())
	result, err := sess.Cart.RemoveItem(r.Context(), variantID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeMutation(w, result)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if err := sess.Cart.Clear(r.Context()); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout handles GET /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	url, err := sess.Cart.StartCheckout(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: checkoutResponse{CheckoutURL: url}})
}

// writeMutation answers a completed mutation. Backend userErrors do not fail
// the request; they travel next to the cart so the storefront can show them.
func writeMutation(w http.ResponseWriter, result service.MutationResult) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
