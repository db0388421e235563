package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/handlers"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 * 1024

// Options holds the collaborators of the router.
type Options struct {
	Handler *handlers.Handler
	Stream  http.Handler

	// RateLimit is nil when no Redis is configured.
	RateLimit       *redis.Client
	RateLimitConfig middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if opts.RateLimit != nil {
		limiter := middleware.NewRateLimiter(opts.RateLimit, logger, opts.RateLimitConfig)
		r.Use(limiter.Middleware)
	}

	// CORS - the browser client may be served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.UserHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.User)

	h := opts.Handler

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Route("/participants", func(r chi.Router) {
		r.Post("/", h.Join)
		r.Get("/", h.ListParticipants)
	})
	r.Post("/status", h.Status)

	r.Route("/messages", func(r chi.Router) {
		r.Post("/", h.PostMessage)
		r.Get("/", h.GetMessages)
		r.Get("/search", h.Search)
		if opts.Stream != nil {
			r.Get("/stream", opts.Stream.ServeHTTP)
		}
		r.Put("/{id}", h.EditMessage)
		r.Delete("/{id}", h.DeleteMessage)
	})

	return r
}
