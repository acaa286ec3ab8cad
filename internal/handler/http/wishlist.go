package http

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// WishlistHandler handles HTTP requests for wishlist endpoints.
type WishlistHandler struct {
	logger *slog.Logger
}

// NewWishlistHandler creates a new wishlist HTTP handler.
func NewWishlistHandler(logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{logger: logger}
}

// --- Request DTOs ---

// WishlistItemRequest is the JSON request body for adding or toggling a
// favorite.
type WishlistItemRequest struct {
	ProductID    string           `json:"product_id" validate:"required,max=255"`
	Handle       string           `json:"handle" validate:"required,max=255"`
	Title        string           `json:"title" validate:"required,max=500"`
	Image        string           `json:"image" validate:"omitempty,url"`
	Price        *decimal.Decimal `json:"price"`
	CurrencyCode string           `json:"currency_code" validate:"omitempty,len=3"`
}

func (req WishlistItemRequest) toItem() domain.WishlistItem {
	return domain.WishlistItem{
		ProductID:    req.ProductID,
		Handle:       req.Handle,
		Title:        req.Title,
		Image:        req.Image,
		Price:        req.Price,
		CurrencyCode: req.CurrencyCode,
	}
}

// --- Response DTOs ---

type wishlistResponse struct {
	Items []domain.WishlistItem `json:"items"`
	Count int                   `json:"count"`
}

type wishlistChangeResponse struct {
	ProductID      string `json:"product_id"`
	Favorite       bool   `json:"favorite"`
	Changed        bool   `json:"changed"`
	AlreadyPresent bool   `json:"already_present,omitempty"`
}

// --- Handlers ---

// ListItems handles GET /api/v1/wishlist
func (h *WishlistHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	items := sess.Wishlist.Items()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wishlistResponse{Items: items, Count: len(items)}})
}

// AddItem handles POST /api/v1/wishlist
func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	added := sess.Wishlist.Add(r.Context(), req.toItem())

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: wishlistChangeResponse{
		ProductID:      req.ProductID,
		Favorite:       true,
		Changed:        added,
		AlreadyPresent: !added,
	}})
}

// RemoveItem handles DELETE /api/v1/wishlist/{productId}
func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathParam(r, "productId")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	sess := sessionFrom(r.Context())
	removed := sess.Wishlist.Remove(r.Context(), productID)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wishlistChangeResponse{
		ProductID: productID,
		Favorite:  false,
		Changed:   removed,
	}})
}

// Toggle handles POST /api/v1/wishlist/toggle
func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	favorite := sess.Wishlist.Toggle(r.Context(), req.toItem())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wishlistChangeResponse{
		ProductID: req.ProductID,
		Favorite:  favorite,
		Changed:   true,
	}})
}

// IsFavorite handles GET /api/v1/wishlist/{productId}
func (h *WishlistHandler) IsFavorite(w http.ResponseWriter, r *http.Request) {
	productID, err := pathParam(r, "productId")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	sess := sessionFrom(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wishlistChangeResponse{
		ProductID: productID,
		Favorite:  sess.Wishlist.IsFavorite(productID),
	}})
}
