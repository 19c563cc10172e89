// Package di provides dependency injection wiring for the application.
// The Container is the single source of truth for all service instances.
package di

import (
	"github.com/jmercier/folio/internal/clientdata"
	"github.com/jmercier/folio/internal/clients/marketdata"
	"github.com/jmercier/folio/internal/database"
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

// Container holds all dependencies for the application
type Container struct {
	// Databases
	PortfolioDB *database.DB // Accounts, holdings, transaction ledger
	SnapshotsDB *database.DB // Daily valuation records
	HistoryDB   *database.DB // Price/rate series and client response cache

	// Clients
	MarketDataClient *marketdata.Client

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	PortfolioRepo  *portfolio.Repository
	SnapshotRepo   *snapshots.Repository
	HistoryRepo    *history.Repository
	ClientDataRepo *clientdata.Repository

	// Services
	PortfolioService  *portfolio.Service
	RateCache         *services.RateCacheService
	Aggregator        *valuation.Aggregator
	SnapshotService   *snapshots.Service
	HistoricalService *historical.Service
	BackupService     *reliability.BackupService // nil when backup disabled

	// Jobs
	RefreshJob     *scheduler.RefreshJob
	BackfillJob    *scheduler.BackfillJob
	CleanupJob     *clientdata.CleanupJob
	MaintenanceJob *reliability.MaintenanceJob
	BackupJob      *scheduler.BackupJob // nil when backup disabled
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"portfolio": c.PortfolioDB,
		"snapshots": c.SnapshotsDB,
		"history":   c.HistoryDB,
	}
}

// Close releases all database connections
func (c *Container) Close() {
	for _, db := range []*database.DB{c.PortfolioDB, c.SnapshotsDB, c.HistoryDB} {
		if db != nil {
			db.Close()
		}
	}
}
