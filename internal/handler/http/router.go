package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/service"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/health"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig holds the router settings that come from configuration.
type RouterConfig struct {
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string
	// Per-client limit on routes that create preliminary orders.
	SubmitRateLimitRPS   float64
	SubmitRateLimitBurst int
	// Peers allowed to name the client through forwarding headers.
	TrustedProxies []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	storefront *service.StorefrontService,
	orders *service.OrderService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	submitLimit := middleware.RateLimit(cfg.SubmitRateLimitRPS, cfg.SubmitRateLimitBurst, cfg.TrustedProxies, logger)
	cartHandler := NewCartHandler(storefront, logger)
	orderHandler := NewOrderHandler(orders, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/carts/{session}", func(r chi.Router) {
			r.Use(CartSession)

			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/lines", cartHandler.AddLine)
			r.Patch("/lines/{code}", cartHandler.AdjustQuantity)
			r.Put("/lines/{code}", cartHandler.SetQuantity)
			r.Post("/lines/{code}/decrement", cartHandler.RemoveOneUnit)
			r.Put("/lines/{code}/note", cartHandler.UpdateNote)
			r.Post("/refresh-stock", cartHandler.RefreshStock)
			r.With(submitLimit).Post("/checkout", cartHandler.Checkout)
		})

		r.Get("/quotes/{code}", cartHandler.GetQuote)
		r.Post("/rates/refresh", cartHandler.RefreshRates)

		r.With(submitLimit).Post("/orders", orderHandler.SubmitOrder)
		r.Get("/orders/{id}", orderHandler.GetOrder)
	})

	return r
}
