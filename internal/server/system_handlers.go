// Package server provides the HTTP server and routing for Folio.
package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jmercier/folio/internal/database"
	"github.com/jmercier/folio/internal/reliability"
	"github.com/jmercier/folio/internal/scheduler"
	"github.com/jmercier/folio/internal/version"
)

// SystemHandlers serves monitoring and manual-operation endpoints
type SystemHandlers struct {
	log           zerolog.Logger
	dataDir       string
	databases     map[string]*database.DB
	backupService *reliability.BackupService // nil when backup disabled
	startTime     time.Time

	mu   sync.RWMutex
	jobs map[string]scheduler.Job
}

// SystemStatusResponse is the payload for GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	Accounts      int     `json:"accounts"`
	Holdings      int     `json:"holdings"`
	Transactions  int     `json:"transactions"`
	Snapshots     int     `json:"snapshots"`
	LastSnapshot  string  `json:"last_snapshot,omitempty"`
	PriceSymbols  int     `json:"price_symbols"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DatabaseStatsResponse is the payload for GET /api/system/database/stats
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse is the payload for GET /api/system/disk
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	backupService *reliability.BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("component", "system_handlers").Logger(),
		dataDir:       dataDir,
		databases:     databases,
		backupService: backupService,
		startTime:     time.Now(),
		jobs:          make(map[string]scheduler.Job),
	}
}

// SetJobs registers job instances for manual triggering via API
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// HandleSystemStatus returns process and data counts
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPct, memPct := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		CPUPercent:    cpuPct,
		MemPercent:    memPct,
	}

	if db, ok := h.databases["portfolio"]; ok && db != nil {
		response.Accounts = h.countRows(db.Conn(), "accounts")
		response.Holdings = h.countRows(db.Conn(), "holdings")
		response.Transactions = h.countRows(db.Conn(), "transactions")
	}

	if db, ok := h.databases["snapshots"]; ok && db != nil {
		response.Snapshots = h.countRows(db.Conn(), "snapshots")

		var lastDate sql.NullString
		if err := db.Conn().QueryRow(`SELECT MAX(date) FROM snapshots`).Scan(&lastDate); err != nil && err != sql.ErrNoRows {
			h.log.Warn().Err(err).Msg("Failed to query latest snapshot date")
		} else if lastDate.Valid {
			response.LastSnapshot = lastDate.String
		}
	}

	if db, ok := h.databases["history"]; ok && db != nil {
		var symbols int
		if err := db.Conn().QueryRow(`SELECT COUNT(DISTINCT symbol) FROM daily_prices`).Scan(&symbols); err != nil && err != sql.ErrNoRows {
			h.log.Warn().Err(err).Msg("Failed to query price symbol count")
		}
		response.PriceSymbols = symbols
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns per-database size statistics
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, name := range names {
		db := h.databases[name]
		if db == nil {
			continue
		}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}

		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalSizeMB += sizeMB

		databases = append(databases, DBInfo{
			Name:      name,
			Path:      db.Path(),
			SizeMB:    sizeMB,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
		})
	}

	h.writeJSON(w, DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns data directory usage
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)

	h.writeJSON(w, DiskUsageResponse{
		DataDirMB: dataDirSize,
		TotalMB:   dataDirSize,
	})
}

// HandleJobsStatus lists the jobs available for manual triggering
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	h.writeJSON(w, map[string]interface{}{"jobs": names})
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, fmt.Sprintf("unknown job: %s", name), http.StatusNotFound)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	// Jobs can run for minutes, so the trigger returns immediately
	go func() {
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Job %s triggered", name),
	})
}

// HandleListBackups lists archives in the backup store, newest first
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		http.Error(w, "backup not configured", http.StatusServiceUnavailable)
		return
	}

	backups, err := h.backupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, map[string]interface{}{"backups": backups})
}

// countRows returns the row count of a table, 0 on error
func (h *SystemHandlers) countRows(conn *sql.DB, table string) int {
	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
		h.log.Warn().Err(err).Str("table", table).Msg("Failed to count rows")
		return 0
	}
	return count
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval so the status endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
