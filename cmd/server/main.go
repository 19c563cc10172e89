// Package main is the entry point for the Folio portfolio valuation engine.
// The application records accounts, holdings and transactions, values the
// portfolio against market data, and maintains a daily snapshot history.
//
// Startup sequence:
//  1. Load configuration from environment variables
//  2. Initialize logging
//  3. Wire all dependencies via the DI container (databases, repositories, services)
//  4. Register and start scheduled jobs (refresh, backfill, cleanup, maintenance, backup)
//  5. Start the HTTP server
//  6. Wait for a shutdown signal and stop gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmercier/folio/internal/config"
	"github.com/jmercier/folio/internal/di"
	"github.com/jmercier/folio/internal/scheduler"
	"github.com/jmercier/folio/internal/server"
	"github.com/jmercier/folio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Folio")

	// Wire all dependencies using DI container
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Register and start scheduled jobs
	sched := scheduler.New(log)
	if err := di.RegisterJobs(container, cfg, sched); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scheduled jobs")
	}
	sched.Start()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Config:    cfg,
		DevMode:   cfg.DevMode,
		Container: container,
	})
	srv.SetJobs(
		container.RefreshJob,
		container.BackfillJob,
		container.CleanupJob,
		container.MaintenanceJob,
	)
	if container.BackupJob != nil {
		srv.SetJobs(container.BackupJob)
	}

	// Start server in goroutine so shutdown handling stays on the main thread
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sched.Stop()
	log.Info().Msg("Scheduler stopped")

	// In-flight requests get up to 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
