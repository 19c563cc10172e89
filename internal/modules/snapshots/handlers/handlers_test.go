package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jmercier/folio/internal/events"
	"github.com/jmercier/folio/internal/modules/snapshots"
	"github.com/jmercier/folio/internal/modules/valuation"
)

func setupHandler(t *testing.T) (*chi.Mux, *snapshots.Repository, *events.Bus) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schemaPath := filepath.Join("..", "..", "..", "database", "schemas", "snapshots_schema.sql")
	schema, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	repo := snapshots.NewRepository(db, zerolog.Nop())

	bus := events.NewBus()
	manager := events.NewManager(bus, zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(repo, nil, manager, zerolog.Nop()).RegisterRoutes(router)
	return router, repo, bus
}

func seedSnapshot(t *testing.T, repo *snapshots.Repository, date time.Time, accountID *string, value float64) {
	t.Helper()

	snap := snapshots.FromAggregate(valuation.AccountAggregate{
		TotalValue: value,
		TotalCost:  value * 0.9,
		Currency:   "JPY",
		Movers: []valuation.HoldingMover{
			{Symbol: "7203", DailyPnL: 1200, MarketValue: value},
		},
	}, date, accountID)
	require.NoError(t, repo.Upsert(&snap))
}

func get(t *testing.T, router *chi.Mux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetRangeDefaultsToGlobalSeries(t *testing.T) {
	router, repo, _ := setupHandler(t)

	accountID := "acct-1"
	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), nil, 150000)
	seedSnapshot(t, repo, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), nil, 152000)
	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), &accountID, 90000)

	rec := get(t, router, "/snapshots/?from=2024-06-01&to=2024-06-30")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snapshots []snapshots.Snapshot `json:"snapshots"`
		Count     int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Nil(t, body.Snapshots[0].AccountID)
	assert.Equal(t, 150000.0, body.Snapshots[0].TotalValue)
}

func TestGetRangeFiltersByAccount(t *testing.T) {
	router, repo, _ := setupHandler(t)

	accountID := "acct-1"
	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), nil, 150000)
	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), &accountID, 90000)

	rec := get(t, router, "/snapshots/?from=2024-06-01&to=2024-06-30&account_id=acct-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snapshots []snapshots.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Snapshots, 1)
	require.NotNil(t, body.Snapshots[0].AccountID)
	assert.Equal(t, "acct-1", *body.Snapshots[0].AccountID)
}

func TestGetRangeRejectsBadDate(t *testing.T) {
	router, _, _ := setupHandler(t)

	rec := get(t, router, "/snapshots/?from=June-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLatest(t *testing.T) {
	router, repo, _ := setupHandler(t)

	rec := get(t, router, "/snapshots/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), nil, 150000)
	seedSnapshot(t, repo, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), nil, 152000)

	rec = get(t, router, "/snapshots/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap snapshots.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 152000.0, snap.TotalValue)
}

func TestGetMovers(t *testing.T) {
	router, repo, _ := setupHandler(t)

	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), nil, 150000)

	rec := get(t, router, "/snapshots/movers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Date   string                   `json:"date"`
		Movers []valuation.HoldingMover `json:"movers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-06-10", body.Date)
	require.Len(t, body.Movers, 1)
	assert.Equal(t, "7203", body.Movers[0].Symbol)
}

func TestResetDeletesAllAndEmitsEvent(t *testing.T) {
	router, repo, bus := setupHandler(t)

	resets := 0
	bus.Subscribe(events.DataReset, func(*events.Event) { resets++ })

	seedSnapshot(t, repo, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), nil, 150000)

	req := httptest.NewRequest(http.MethodDelete, "/snapshots/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resets)

	latest, err := repo.GetLatest(nil)
	require.NoError(t, err)
	assert.Nil(t, latest)
}
