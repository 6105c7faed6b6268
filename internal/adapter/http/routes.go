package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Health)
	r.Get("/hxp", h.ServerInfo)

	r.Route("/hxp/v1", func(r chi.Router) {
		// Requests
		r.Post("/requests", h.CreateRequest)
		r.Get("/requests", h.ListRequests)
		r.Get("/requests/{id}", h.GetRequest)
		r.Post("/requests/{id}/claim", h.ClaimRequest)
		r.Post("/requests/{id}/resolve", h.ResolveRequest)
		r.Post("/requests/{id}/cancel", h.CancelRequest)
		r.Get("/requests/{id}/eligible", h.RequestEligible)

		// Directory administration
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Post("/projects/{id}/principals", h.AddPrincipal)
		r.Get("/projects/{id}/eligible", h.ProjectEligible)
	})
}
