package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/config"
	"github.com/jmercier/folio/internal/database"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}
	container.PortfolioDB = portfolioDB

	snapshotsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshots",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize snapshots database: %w", err)
	}
	container.SnapshotsDB = snapshotsDB

	// Everything in history.db can be refetched from the provider.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileCache,
		Name:    "history",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	for name, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
