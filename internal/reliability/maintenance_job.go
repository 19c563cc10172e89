package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/database"
	"github.com/jmercier/folio/internal/events"
)

// Disk space thresholds for the data directory.
const (
	diskSpaceWarnBytes = 500 * 1024 * 1024 // 500 MB
	diskSpaceHaltBytes = 100 * 1024 * 1024 // 100 MB
)

// MaintenanceJob runs nightly database upkeep: integrity checks,
// WAL checkpoints and a disk space check on the data directory.
type MaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	manager   *events.Manager
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(
	databases map[string]*database.DB,
	dataDir string,
	manager *events.Manager,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		manager:   manager,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance sweep
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting database maintenance")
	startTime := time.Now()

	ctx := context.Background()

	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Integrity check failed")
			if j.manager != nil {
				j.manager.EmitError("reliability", err, map[string]interface{}{
					"database": name,
				})
			}
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	// Checkpoint failures are not fatal, the WAL just stays larger.
	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Database maintenance completed")

	return nil
}

// checkDiskSpace verifies the data directory has enough free space
func (j *MaintenanceJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		j.log.Warn().Err(err).Msg("Failed to check disk space")
		return nil
	}

	available := int64(stat.Bavail) * int64(stat.Bsize)

	if available < diskSpaceHaltBytes {
		err := fmt.Errorf("critically low disk space: %d bytes available", available)
		j.log.Error().Int64("available_bytes", available).Msg("Critically low disk space")
		if j.manager != nil {
			j.manager.EmitError("reliability", err, map[string]interface{}{
				"available_bytes": available,
			})
		}
		return err
	}

	if available < diskSpaceWarnBytes {
		j.log.Warn().Int64("available_bytes", available).Msg("Low disk space")
	}

	return nil
}
