package api

import (
	"net/http"

	"github.com/commercekit/hookrelay/internal/breaker"
	"github.com/commercekit/hookrelay/internal/ingress"
	"github.com/commercekit/hookrelay/internal/registry"
	"github.com/commercekit/hookrelay/internal/retry"
	"github.com/commercekit/hookrelay/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, reg *registry.Registry, tracker *breaker.Tracker, ingressSvc *ingress.Service, scheduler *retry.Scheduler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	healthHandler := NewHealthHandler()
	subHandler := NewSubscriptionHandler(reg, tracker)
	eventHandler := NewEventHandler(ingressSvc)
	dlqHandler := NewDeadLetterHandler(pgStore)
	opsHandler := NewOpsHandler(pgStore, scheduler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Delete("/{id}", subHandler.Deactivate)
			r.Get("/{id}/health", subHandler.Health)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Raise)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/metrics", opsHandler.Metrics)
	})

	return r
}
