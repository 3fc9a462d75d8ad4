package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/sme-plug/app"
	"github.com/upb/sme-plug/handlers"
	"github.com/upb/sme-plug/middleware"
	"github.com/upb/sme-plug/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	mw := middleware.NewRequestMiddleware(deps.Logger)

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.PersonaHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Personas, deps.Logger)
	query := handlers.NewQueryHandler(deps.Pipeline, deps.Logger)
	personas := handlers.NewPersonaHandler(deps.Personas, deps.Retriever, deps.Logger)
	audit := handlers.NewAuditHandler(deps.AuditLog, deps.AuditEntries, deps.Logger)

	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// generation inherits this deadline through the request context
			if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
				r.Use(chimw.Timeout(timeout))
			}
			r.Use(mw.ExtractPersona)
			r.Post("/query", query.HandleQuery)
		})

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", personas.HandleList)
			r.Post("/", personas.HandleCreate)
			r.Put("/switch", personas.HandleSwitch)
			r.Get("/{id}", personas.HandleGet)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", audit.HandleList)
			r.Get("/{id}", audit.HandleGet)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
