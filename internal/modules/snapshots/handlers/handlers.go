// Package handlers provides HTTP handlers for snapshot reads and refresh.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/events"
	"github.com/jmercier/folio/internal/modules/snapshots"
)

// Handler handles snapshot HTTP requests
type Handler struct {
	repo    *snapshots.Repository
	service *snapshots.Service
	manager *events.Manager
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(
	repo *snapshots.Repository,
	service *snapshots.Service,
	manager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		manager: manager,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// accountIDParam reads the optional account_id query parameter.
// Absent or empty means the global aggregate series.
func accountIDParam(r *http.Request) *string {
	if id := r.URL.Query().Get("account_id"); id != "" {
		return &id
	}
	return nil
}

// HandleGetRange handles GET /api/snapshots.
// Query parameters: from, to (YYYY-MM-DD, default trailing year) and
// account_id (default: the global series).
func (h *Handler) HandleGetRange(w http.ResponseWriter, r *http.Request) {
	from, to := time.Now().AddDate(-1, 0, 0), time.Now()

	if s := r.URL.Query().Get("from"); s != "" {
		parsed, err := domain.ParseDay(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if s := r.URL.Query().Get("to"); s != "" {
		parsed, err := domain.ParseDay(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
			return
		}
		to = parsed
	}

	snaps, err := h.repo.GetRange(accountIDParam(r), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot range")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// HandleGetLatest handles GET /api/snapshots/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.GetLatest(accountIDParam(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "no snapshots recorded")
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// HandleGetMovers handles GET /api/snapshots/movers.
// Returns the biggest daily movers from the latest snapshot.
func (h *Handler) HandleGetMovers(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.GetLatest(accountIDParam(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "no snapshots recorded")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":   domain.DayKey(snap.Date),
		"movers": snap.Movers,
	})
}

// HandleRefresh handles POST /api/snapshots/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshToday(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Snapshot refresh failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// HandleReset handles DELETE /api/snapshots.
// Drops the entire snapshot store; the backfill engine rebuilds it.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteAll(); err != nil {
		h.log.Error().Err(err).Msg("Snapshot reset failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.manager != nil {
		h.manager.Emit(events.DataReset, "snapshots", nil)
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
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
