package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The write
// endpoints sit behind API-key auth; health and the live feed do not.
func MountRoutes(r chi.Router, h *Handlers, apiKeyHash string) {
	r.Get("/health", h.Health)

	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(apiKeyHash))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/events", h.IngestEvent)
		r.Post("/events/batch", h.IngestBatch)
	})
}
