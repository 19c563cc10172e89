package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.HandleListAccounts)
		r.Post("/", h.HandleCreateAccount)
		r.Get("/book", h.HandleGetBook)
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleDeleteAccount(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/{id}/holdings", func(w http.ResponseWriter, r *http.Request) {
			h.HandleCreateHolding(w, r, chi.URLParam(r, "id"))
		})
	})

	r.Route("/holdings", func(r chi.Router) {
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetHolding(w, r, chi.URLParam(r, "id"))
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleDeleteHolding(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
			h.HandleRecordTransaction(w, r, chi.URLParam(r, "id"))
		})
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleDeleteTransaction(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/import", h.HandleImportTransactions)
	})
}
