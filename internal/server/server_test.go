package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercier/folio/internal/config"
	"github.com/jmercier/folio/internal/di"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		DataDir:             t.TempDir(),
		Port:                0,
		BaseCurrency:        "JPY",
		MarketDataURL:       "http://localhost:9",
		FXPairFallback:      true,
		RefreshSchedule:     "*/15 * * * *",
		BackfillSchedule:    "30 2 * * *",
		CleanupSchedule:     "0 4 * * *",
		MaintenanceSchedule: "0 5 * * *",
		BackupSchedule:      "0 3 * * 1",
		Backup:              &config.BackupConfig{Enabled: false},
	}

	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	s := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   true,
		Container: container,
	})
	s.SetJobs(container.RefreshJob, container.BackfillJob, container.CleanupJob, container.MaintenanceJob)
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "folio", body["service"])
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/system/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 0, body.Accounts)
	assert.Equal(t, 0, body.Snapshots)
}

func TestDatabaseStats(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/system/database/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body DatabaseStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Databases, 3)
	assert.Equal(t, "history", body.Databases[0].Name)
	assert.Equal(t, "portfolio", body.Databases[1].Name)
	assert.Equal(t, "snapshots", body.Databases[2].Name)
	for _, db := range body.Databases {
		assert.Greater(t, db.PageCount, int64(0), db.Name)
	}
}

func TestJobsListAndTrigger(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/system/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []string `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Jobs, "snapshot_refresh")
	assert.Contains(t, body.Jobs, "db_maintenance")

	req := httptest.NewRequest(http.MethodPost, "/api/system/jobs/db_maintenance", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/system/jobs/no_such_job", nil)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBackupsUnavailableWhenDisabled(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/system/backups")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestModuleRoutesMounted(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/accounts/")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/api/snapshots/")
	assert.Equal(t, http.StatusOK, rec.Code)
}
