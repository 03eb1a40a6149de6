package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/api/middleware"
	"github.com/eldtechnologies/agentrooms/internal/handlers"
	"github.com/eldtechnologies/agentrooms/internal/ratelimit"
)

// maxBodySize bounds request bodies; agent instructions are the largest field.
const maxBodySize = 64 * 1024

// Options holds what the router serves and how it is guarded.
type Options struct {
	Handler *handlers.Handler
	// WebSocket serves GET /ws.
	WebSocket http.Handler
	// Auth gates every route except /health and /metrics. Nil disables it.
	Auth *middleware.AuthMiddleware
	// Limiters backs the per-route HTTP rate limits. Nil uses in-memory counters.
	Limiters           ratelimit.Factory
	RateLimitWhitelist []string
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	factory := opts.Limiters
	if factory == nil {
		factory = ratelimit.MemoryFactory()
	}
	limiter := middleware.NewRateLimiter(factory, logger, middleware.RateLimiterConfig{
		Whitelist: opts.RateLimitWhitelist,
	})
	r.Use(limiter.Middleware)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: len(opts.AllowedOrigins) > 0,
		MaxAge:           300,
	}))

	if opts.Auth != nil {
		r.Use(opts.Auth.RequireAuth)
	}

	h := opts.Handler

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/api", h.Root)
	r.Get("/stats", h.Stats)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", h.CreateRoom)
		r.Get("/", h.ListRooms)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Put("/", h.UpdateRoom)
			r.Delete("/", h.DeleteRoom)
			r.Post("/join", h.JoinRoom)
			r.Get("/messages", h.GetMessages)
			r.Post("/messages", h.PostMessage)
			r.Post("/read", h.MarkRead)
			r.Get("/agents", h.ListAgents)
			r.Post("/agents", h.CreateAgent)
		})
	})

	r.Get("/invite/{code}", h.GetInvite)
	r.Get("/sessions/{token}", h.GetSession)
	r.Delete("/sessions/{token}", h.DeleteSession)
	r.Get("/templates", h.ListTemplates)
	r.Post("/seed", h.Seed)
	r.Post("/chat", h.Complete)

	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}

	return r
}
