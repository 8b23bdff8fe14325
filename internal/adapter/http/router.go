package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/numledger/internal/adapter/http/handler"
	"github.com/iho/numledger/internal/adapter/http/middleware"
	"github.com/iho/numledger/internal/infrastructure/metrics"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	WalletHandler   *handler.WalletHandler
	SentinelHandler *handler.SentinelHandler
	PricingHandler  *handler.PricingHandler
	HealthHandler   *handler.HealthHandler

	// RateLimiter is optional. When nil no limit is enforced.
	RateLimiter middleware.Limiter

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger

	AllowedOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", handler.IdempotencyKeyHeader, "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimit(cfg.RateLimiter, cfg.Metrics, cfg.Logger))
		}

		// Wallets
		r.Route("/wallets/{userID}", func(r chi.Router) {
			r.Get("/", cfg.WalletHandler.Get)
			r.Get("/balance", cfg.WalletHandler.Balance)
			r.Get("/transactions", cfg.WalletHandler.Transactions)
			r.Post("/reserve", cfg.WalletHandler.Reserve)
			r.Post("/commit", cfg.WalletHandler.Commit)
			r.Post("/rollback", cfg.WalletHandler.Rollback)
			r.Post("/credit", cfg.WalletHandler.Credit)
			r.Post("/debit", cfg.WalletHandler.Debit)
			r.Post("/refund", cfg.WalletHandler.Refund)
			r.Post("/charge", cfg.WalletHandler.Charge)
		})

		// Sentinel
		r.Post("/sentinel/{userID}/verify", cfg.SentinelHandler.Verify)

		// Pricing
		r.Route("/pricing", func(r chi.Router) {
			r.Post("/rank", cfg.PricingHandler.Rank)
			r.Post("/optimize", cfg.PricingHandler.Optimize)
		})
	})

	return r
}
