package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/backfill", h.HandleBackfill)

	r.Route("/history", func(r chi.Router) {
		r.Get("/prices/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetDailyCloses(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
