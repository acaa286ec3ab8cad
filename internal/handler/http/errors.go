package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/storefront"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// writeError maps commerce backend failures onto service errors before
// writing the standard error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	httputil.WriteError(w, r, storefront.ToAppError(err), logger)
}

// pathParam returns the unescaped URL parameter name. Commerce IDs such as
// gid://shopify/ProductVariant/1 arrive percent-encoded.
func pathParam(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		return "", apperrors.InvalidInput("invalid " + name)
	}
	return v, nil
}
