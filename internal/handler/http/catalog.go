package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// CatalogHandler handles HTTP requests for product endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// ListProducts handles GET /api/v1/products?count=&query=
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	count := service.DefaultProductPageSize
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxProductPageSize {
			writeError(w, r, apperrors.InvalidInput("count must be between 1 and "+strconv.Itoa(service.MaxProductPageSize)), h.logger)
			return
		}
		count = n
	}

	sess := sessionFrom(r.Context())
	list, err := h.catalog.Products(r.Context(), sess.Locale.Current(), count, q.Get("query"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: list})
}

// GetProduct handles GET /api/v1/products/{handle}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	handle, err := pathParam(r, "handle")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	sess := sessionFrom(r.Context())
	product, err := h.catalog.ProductByHandle(r.Context(), sess.Locale.Current(), handle)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}
