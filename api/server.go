/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontend

ROUTE GROUPS:
  /api/provider/*       Raw record ingestion
  /api/entries/*        Day entries and overrides
  /api/sweep            Auto-checkout
  /api/backfill         Absence/holiday backfill
  /api/operations       Batch audit log
  /api/mappings/*       Identity mappings
  /api/users/*          User management

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/attendd/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Provider ingestion
		r.Route("/provider", func(r chi.Router) {
			r.Post("/ingest", h.IngestProviderBatch)
		})

		// Day entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Get("/{user}/{date}", h.GetEntry)
			r.Post("/{user}/{date}/override", h.ApplyOverride)
			r.Delete("/{user}/{date}/override", h.ClearOverride)
		})

		// Batch operations
		r.Post("/sweep", h.TriggerSweep)
		r.Post("/backfill", h.TriggerBackfill)
		r.Get("/operations", h.ListOperations)

		// Identity mapping routes
		r.Route("/mappings", func(r chi.Router) {
			r.Get("/", h.ListMappings)
			r.Post("/", h.CreateMapping)
			r.Get("/pending", h.ListPendingMappings)
			r.Post("/{code}/accept", h.AcceptPendingMapping)
			r.Delete("/{code}", h.DeactivateMapping)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Put("/{id}/workweek", h.UpdateWorkWeek)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
