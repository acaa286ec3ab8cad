package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// catalogMaxAge is the browser cache lifetime of product responses, in seconds.
const catalogMaxAge = 60

// RouterConfig holds everything the HTTP surface depends on.
type RouterConfig struct {
	ServiceName string
	Registry    *service.SessionRegistry
	Catalog     *service.CatalogService
	Verifier    *identity.Verifier
	Health      *health.Handler
	CORS        middleware.CORSConfig
	RateLimit   RateLimitConfig
	PprofCIDRs  []string
	Logger      *slog.Logger
}

// RateLimitConfig sets the per-session request budget. A zero RPS disables
// limiting.
type RateLimitConfig struct {
	RPS   int
	Burst int
}

// NewRouter creates a chi router with all storefront routes registered. ctx
// bounds background work owned by the router, such as rate limiter cleanup.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(logger)
	streamHandler := NewStreamHandler(cfg.Registry, cfg.CORS.AllowedOrigins, logger)
	sessionHandler := NewSessionHandler(logger)
	localeHandler := NewLocaleHandler(logger)
	wishlistHandler := NewWishlistHandler(logger)
	catalogHandler := NewCatalogHandler(cfg.Catalog, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(EnsureSessionID)
		r.Use(middleware.RequestLogger(logger))
		if cfg.RateLimit.RPS > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger))
		}

		r.Get("/locales", localeHandler.ListLocales)

		r.Group(func(r chi.Router) {
			r.Use(SessionLoader(cfg.Registry, cfg.Verifier, logger))

			// The stream holds its connection open, so it skips the
			// request timeout.
			r.Get("/cart/stream", streamHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(30 * time.Second))
				r.Use(ContentTypeJSON)

				r.With(middleware.CacheControl(catalogMaxAge)).Route("/products", func(r chi.Router) {
					r.Get("/", catalogHandler.ListProducts)
					r.Get("/{handle}", catalogHandler.GetProduct)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.NoStore)

					r.Get("/session", sessionHandler.Me)
					r.Post("/session/visibility", sessionHandler.Visibility)

					r.Route("/cart", func(r chi.Router) {
						r.Get("/", cartHandler.GetCart)
						r.Delete("/", cartHandler.ClearCart)
						r.Post("/sync", cartHandler.SyncCart)
						r.Get("/checkout", cartHandler.Checkout)

						r.Post("/items", cartHandler.AddItem)
						r.Put("/items/{variantId}", cartHandler.UpdateItemQuantity)
						r.Delete("/items/{variantId}", cartHandler.RemoveItem)
					})

					r.Route("/locale", func(r chi.Router) {
						r.Get("/", localeHandler.GetLocale)
						r.Put("/country", localeHandler.SetCountry)
						r.Put("/language", localeHandler.SetLanguage)
					})

					r.Route("/wishlist", func(r chi.Router) {
						r.Get("/", wishlistHandler.ListItems)
						r.Post("/", wishlistHandler.AddItem)
						r.Post("/toggle", wishlistHandler.Toggle)
						r.Get("/{productId}", wishlistHandler.IsFavorite)
						r.Delete("/{productId}", wishlistHandler.RemoveItem)
					})
				})
			})
		})
	})

	return r
}
