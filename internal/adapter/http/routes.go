package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/TriggerGate/internal/adapter/otel"
	"github.com/Strob0t/TriggerGate/internal/adapter/ws"
	"github.com/Strob0t/TriggerGate/internal/config"
	"github.com/Strob0t/TriggerGate/internal/middleware"
)

// NewRouter assembles the full route tree. Webhook ingestion stays
// unauthenticated at the HTTP level; each delivery is verified by its
// source adapter's signature scheme. The operator API requires a
// bearer token. hub and limiter may be nil.
func NewRouter(h *Handlers, hub *ws.Hub, limiter *middleware.RateLimiter, operators config.Operators, corsOrigin string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(otel.HTTPMiddleware("triggergate"))
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(SecurityHeaders)
	if corsOrigin != "" {
		r.Use(CORS(corsOrigin))
	}
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	r.Get("/health", h.Health)
	r.Post("/hooks/{trigger}", h.Ingest)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.OperatorAuth(operators))
		api.Get("/approvals", h.ListApprovals)
		api.Get("/approvals/{id}", h.GetApproval)
		api.Post("/approvals/{id}/decision", h.DecideApproval)
		api.Get("/audit", h.ListAudit)
	})

	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	return r
}
