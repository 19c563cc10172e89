package scheduler

import (
	"context"

	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/events"
	"github.com/jmercier/folio/internal/modules/historical"
)

// SnapshotRefresher is the intraday refresh entry point.
type SnapshotRefresher interface {
	RefreshToday(ctx context.Context) error
}

// RefreshJob recomputes and stores today's snapshots.
type RefreshJob struct {
	snapshots SnapshotRefresher
}

// NewRefreshJob creates an intraday snapshot refresh job
func NewRefreshJob(snapshots SnapshotRefresher) *RefreshJob {
	return &RefreshJob{snapshots: snapshots}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "snapshot_refresh"
}

// Run refreshes today's snapshots
func (j *RefreshJob) Run() error {
	return j.snapshots.RefreshToday(context.Background())
}

// Backfiller is the historical reconstruction entry point.
type Backfiller interface {
	Backfill(ctx context.Context) (*historical.Result, error)
}

// BackfillJob fills gaps in the historical snapshot series.
type BackfillJob struct {
	backfill Backfiller
	manager  *events.Manager
}

// NewBackfillJob creates a nightly backfill job
func NewBackfillJob(backfill Backfiller, manager *events.Manager) *BackfillJob {
	return &BackfillJob{backfill: backfill, manager: manager}
}

// Name returns the job name
func (j *BackfillJob) Name() string {
	return "historical_backfill"
}

// Run sweeps the trailing year for missing snapshots
func (j *BackfillJob) Run() error {
	result, err := j.backfill.Backfill(context.Background())
	if err != nil {
		j.manager.EmitError("historical", err, nil)
		return err
	}

	j.manager.EmitTyped(events.BackfillCompleted, "historical", &events.BackfillCompletedData{
		From:            domain.DayKey(result.From),
		To:              domain.DayKey(result.To),
		TradingDays:     result.TradingDays,
		SnapshotsAdded:  result.SnapshotsAdded,
		SymbolsExcluded: result.SymbolsExcluded,
	})
	return nil
}

// BackupRunner is the cloud backup entry point.
type BackupRunner interface {
	Backup(ctx context.Context) error
}

// BackupJob ships database backups to cloud storage.
type BackupJob struct {
	backup BackupRunner
}

// NewBackupJob creates a cloud backup job
func NewBackupJob(backup BackupRunner) *BackupJob {
	return &BackupJob{backup: backup}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "cloud_backup"
}

// Run uploads a backup of all databases
func (j *BackupJob) Run() error {
	return j.backup.Backup(context.Background())
}
