package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/clientdata"
	"github.com/jmercier/folio/internal/clients/marketdata"
	"github.com/jmercier/folio/internal/config"
	"github.com/jmercier/folio/internal/events"
	"github.com/jmercier/folio/internal/modules/historical"
	"github.com/jmercier/folio/internal/modules/history"
	"github.com/jmercier/folio/internal/modules/portfolio"
	"github.com/jmercier/folio/internal/modules/snapshots"
	"github.com/jmercier/folio/internal/modules/valuation"
	"github.com/jmercier/folio/internal/reliability"
	"github.com/jmercier/folio/internal/scheduler"
	"github.com/jmercier/folio/internal/services"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order: databases, clients and events, repositories, services, jobs.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.SnapshotRepo = snapshots.NewRepository(container.SnapshotsDB.Conn(), log)
	container.HistoryRepo = history.NewRepository(container.HistoryDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.HistoryDB.Conn())

	container.MarketDataClient = marketdata.NewClient(cfg.MarketDataURL, container.ClientDataRepo, log)

	notifier := events.NewNotifier(container.EventManager, "portfolio")

	container.PortfolioService = portfolio.NewService(container.PortfolioRepo, notifier, log)
	container.RateCache = services.NewRateCacheService(
		container.MarketDataClient,
		container.HistoryRepo,
		cfg.FXPairFallback,
		log,
	)
	container.Aggregator = valuation.NewAggregator(container.RateCache, log)

	snapshotNotifier := events.NewNotifier(container.EventManager, "snapshots")
	container.SnapshotService = snapshots.NewService(
		container.PortfolioRepo,
		container.SnapshotRepo,
		container.Aggregator,
		container.MarketDataClient,
		cfg.BaseCurrency,
		snapshotNotifier,
		log,
	)

	container.HistoricalService = historical.NewService(
		container.PortfolioRepo,
		container.SnapshotRepo,
		container.HistoryRepo,
		container.RateCache,
		container.MarketDataClient,
		cfg.BaseCurrency,
		events.NewNotifier(container.EventManager, "historical"),
		log,
	)

	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
		}

		container.BackupService = reliability.NewBackupService(
			container.Databases(),
			cfg.DataDir,
			s3Client,
			cfg.Backup.RetentionDays,
			container.EventManager,
			log,
		)
		container.BackupJob = scheduler.NewBackupJob(container.BackupService)
	}

	container.RefreshJob = scheduler.NewRefreshJob(container.SnapshotService)
	container.BackfillJob = scheduler.NewBackfillJob(container.HistoricalService, container.EventManager)
	container.CleanupJob = clientdata.NewCleanupJob(container.ClientDataRepo, log)
	container.MaintenanceJob = reliability.NewMaintenanceJob(
		container.Databases(),
		cfg.DataDir,
		container.EventManager,
		log,
	)

	log.Info().Msg("Dependency injection wiring completed")
	return container, nil
}

// RegisterJobs attaches all recurring jobs to the scheduler
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler) error {
	if err := sched.AddJob(cfg.RefreshSchedule, container.RefreshJob); err != nil {
		return fmt.Errorf("failed to register refresh job: %w", err)
	}
	if err := sched.AddJob(cfg.BackfillSchedule, container.BackfillJob); err != nil {
		return fmt.Errorf("failed to register backfill job: %w", err)
	}
	if err := sched.AddJob(cfg.CleanupSchedule, container.CleanupJob); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}
	if err := sched.AddJob(cfg.MaintenanceSchedule, container.MaintenanceJob); err != nil {
		return fmt.Errorf("failed to register maintenance job: %w", err)
	}
	if container.BackupJob != nil {
		if err := sched.AddJob(cfg.BackupSchedule, container.BackupJob); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}
	return nil
}
