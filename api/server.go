/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

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
  4. CORS:       Cross-origin requests for terminal frontends

ROUTE GROUPS:
  /api/orders/*    Order commands, snapshots, events, verification
  /api/sync        Client catch-up
  /api/catalog/*   Products, price rules, stamp activities
  /api/health      Liveness + ledger head

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/commands", h.ExecuteCommand)
			r.Get("/{id}", h.GetOrder)
			r.Get("/{id}/events", h.GetOrderEvents)
			r.Get("/{id}/verify", h.VerifyOrder)
		})

		// Sync route
		r.Post("/sync", h.SyncOrders)

		// Catalog routes
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/products", h.ListProducts)
			r.Post("/products", h.SaveProduct)
			r.Get("/rules", h.ListRules)
			r.Post("/rules", h.SaveRule)
			r.Get("/activities", h.ListActivities)
			r.Post("/activities", h.SaveActivity)
		})

		// Health route
		r.Get("/health", h.Health)
	})

	return r
}
