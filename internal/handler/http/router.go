package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azuma-miyu/filatelier/internal/cart"
	"github.com/azuma-miyu/filatelier/internal/catalog"
	"github.com/azuma-miyu/filatelier/pkg/health"
	"github.com/azuma-miyu/filatelier/pkg/middleware"
)

// RouterDeps are the collaborators the storefront routes are built from.
type RouterDeps struct {
	Cart      *cart.Engine
	Catalog   catalog.Catalog
	Checkouts Checkouts
	Verifier  TokenVerifier
	Health    *health.Handler
	CORS      middleware.CORSConfig
	// RateLimiter guards checkout submissions. Nil disables it.
	RateLimiter *middleware.RateLimiter
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(deps RouterDeps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(deps.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))
	r.Use(Authenticate(deps.Verifier, logger))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cartHandler := NewCartHandler(deps.Cart, deps.Catalog, logger)
	checkoutHandler := NewCheckoutHandler(deps.Checkouts, logger)

	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.Handler
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{productId}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)
		r.Post("/items/{productId}/refresh", cartHandler.RefreshItem)

		r.Post("/selection/{productId}/toggle", cartHandler.ToggleItem)
		r.Post("/selection/toggle-all", cartHandler.ToggleAll)
		r.Delete("/selection", cartHandler.RemoveSelected)
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(limit).Post("/", checkoutHandler.BeginCheckout)
		r.Get("/{sessionId}", checkoutHandler.GetCheckout)
		r.With(limit).Post("/{sessionId}/confirm", checkoutHandler.ConfirmCheckout)
		r.Delete("/{sessionId}", checkoutHandler.AbandonCheckout)
	})

	return r
}
