package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/globalchat/internal/api/middleware"
	"github.com/eldtechnologies/globalchat/internal/handlers"
	"github.com/eldtechnologies/globalchat/internal/store"
)

// BasePath prefixes every chat endpoint.
const BasePath = "/api"

// MaxBodyBytes caps request bodies at 100 kB.
const MaxBodyBytes = 100 * 1024

// NewRouter creates and configures the HTTP router.
// A nil limiter disables rate limiting.
func NewRouter(logger zerolog.Logger, s store.Store, limiter middleware.Limiter, whitelist []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(MaxBodyBytes))
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - any origin, the browser client is served from elsewhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if limiter != nil {
		r.Use(middleware.NewRateLimiter(limiter, logger, whitelist).Middleware)
	}

	h := handlers.NewHandler(s, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(BasePath, func(r chi.Router) {
		r.Get("/chat", h.GetChat)
		r.Post("/message", h.PostMessage)
		r.Post("/heartbeat", h.Heartbeat)
		r.Post("/clear", h.Clear)
		r.Get("/health", h.Health)
	})

	return r
}
