// Package handlers provides HTTP handlers for historical backfill operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/historical"
	"github.com/jmercier/folio/internal/modules/history"
)

// Handler handles backfill and price history HTTP requests
type Handler struct {
	service *historical.Service
	prices  *history.Repository
	log     zerolog.Logger
}

// NewHandler creates a new historical handler
func NewHandler(service *historical.Service, prices *history.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		prices:  prices,
		log:     log.With().Str("handler", "historical").Logger(),
	}
}

// HandleBackfill handles POST /api/backfill.
// With no body it sweeps the trailing year; an optional JSON body
// {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"} restricts the range.
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var result *historical.Result
	var err error

	if req.From != "" || req.To != "" {
		from, parseErr := domain.ParseDay(req.From)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return
		}
		to, parseErr := domain.ParseDay(req.To)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
			return
		}
		result, err = h.service.BackfillRange(r.Context(), from, to)
	} else {
		result, err = h.service.Backfill(r.Context())
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Backfill failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":             domain.DayKey(result.From),
		"to":               domain.DayKey(result.To),
		"trading_days":     result.TradingDays,
		"snapshots_added":  result.SnapshotsAdded,
		"symbols_excluded": result.SymbolsExcluded,
	})
}

// HandleGetDailyCloses handles GET /api/history/prices/{symbol}
func (h *Handler) HandleGetDailyCloses(w http.ResponseWriter, r *http.Request, symbol string) {
	from, to, err := parseRange(r, time.Now().AddDate(-1, 0, 0), time.Now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.prices.GetDailyCloses(symbol, from, to)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load daily closes")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"points": points,
		"count":  len(points),
	})
}

func parseRange(r *http.Request, defaultFrom, defaultTo time.Time) (time.Time, time.Time, error) {
	from, to := defaultFrom, defaultTo

	if s := r.URL.Query().Get("from"); s != "" {
		parsed, err := domain.ParseDay(s)
		if err != nil {
			return from, to, err
		}
		from = parsed
	}
	if s := r.URL.Query().Get("to"); s != "" {
		parsed, err := domain.ParseDay(s)
		if err != nil {
			return from, to, err
		}
		to = parsed
	}
	return from, to, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
