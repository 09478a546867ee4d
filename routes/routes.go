package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/tryon-gateway/app"
	"github.com/upb/tryon-gateway/handlers"
	"github.com/upb/tryon-gateway/middleware"
	"github.com/upb/tryon-gateway/services"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, handlers.HeaderVendor, handlers.HeaderJobID, handlers.HeaderAdvisories},
		AllowCredentials: deps.Config.Server.AllowCredentials,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", deps.HealthHandler.HandleStatus)
		r.Get("/vendors", deps.TryOnHandler.HandleVendors)
		r.Get("/metrics", deps.TryOnHandler.HandleMetrics)
		r.Post("/tryon", deps.TryOnHandler.HandleTryOn)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleServiceError(w,
			services.NewDomainError(services.ErrorTypeNotFound, "endpoint not found", nil),
			deps.Logger)
	})

	return r
}
