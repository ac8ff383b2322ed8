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
  4. CORS:       Cross-origin requests for the scan UI

ROUTE GROUPS:
  /api/records/*    Scan record intake and queries
  /api/plan/*       Weekly plan management
  /api/analytics/*  Metrics and milestone timeline
  /api/bins         Bin weights
  /api/export/*     Spreadsheet export
  /api/events/*     Completion event stream

SECURITY NOTE:
  No authentication middleware currently. Deploy behind the warehouse
  network boundary only.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. The
// allowed origin is configurable because scan stations hit the API
// from kiosk browsers on a different host.
func NewRouter(h *Handler, allowedOrigin string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/events/scan", h.ScanEvents)

		// Record routes
		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Post("/bulk", h.BulkRecords)
			r.Delete("/", h.DeleteUnits)
			r.Get("/{id}", h.GetRecord)
			r.Patch("/{id}", h.PatchRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})

		// Plan routes
		r.Route("/plan", func(r chi.Router) {
			r.Get("/active_monday", h.ActiveMonday)
			r.Get("/weeks", h.ListWeeks)
			r.Get("/weeks/{monday}", h.GetWeek)
			r.Put("/weeks/{monday}", h.PutWeek)
			r.Delete("/weeks/{monday}", h.DeleteWeek)
		})

		// Analytics routes
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/weeks/{monday}", h.WeekMetrics)
			r.Get("/weeks/{monday}/timeline", h.WeekTimeline)
		})

		// Bin routes
		r.Route("/bins", func(r chi.Router) {
			r.Get("/", h.ListBins)
			r.Put("/", h.PutBins)
		})

		// Export routes
		r.Get("/export/xlsx", h.ExportXLSX)
	})

	return r
}
