// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for all databases (always absolute)
	Port          int
	DevMode       bool
	LogLevel      string
	BaseCurrency  string // Global reporting currency for the aggregate snapshot
	MarketDataURL string // Base URL of the market-data API

	// FXPairFallback controls the last-resort rate lookup: when both the
	// exact-date and 5-day-lookback lookups miss, any cached entry for the
	// pair may be substituted before falling back to 1.0. Substitutions are
	// logged at warn level either way.
	FXPairFallback bool

	// Cron schedules (robfig/cron format)
	RefreshSchedule     string // Daily valuation refresh
	BackfillSchedule    string // Nightly backfill sweep
	CleanupSchedule     string // Client-data cache cleanup
	MaintenanceSchedule string // Integrity checks and WAL checkpoints
	BackupSchedule      string // Cloud backup (ignored when backup disabled)

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible cloud backup configuration
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for S3-compatible stores, empty for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".folio")
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("FOLIO_PORT", 8010),
		DevMode:             getEnvAsBool("FOLIO_DEV_MODE", false),
		LogLevel:            getEnv("FOLIO_LOG_LEVEL", "info"),
		BaseCurrency:        getEnv("FOLIO_BASE_CURRENCY", "JPY"),
		MarketDataURL:       getEnv("FOLIO_MARKET_DATA_URL", "https://query1.finance.yahoo.com"),
		FXPairFallback:      getEnvAsBool("FOLIO_FX_PAIR_FALLBACK", true),
		RefreshSchedule:     getEnv("FOLIO_REFRESH_SCHEDULE", "*/15 * * * *"),
		BackfillSchedule:    getEnv("FOLIO_BACKFILL_SCHEDULE", "30 2 * * *"),
		CleanupSchedule:     getEnv("FOLIO_CLEANUP_SCHEDULE", "0 4 * * *"),
		MaintenanceSchedule: getEnv("FOLIO_MAINTENANCE_SCHEDULE", "0 5 * * *"),
		BackupSchedule:      getEnv("FOLIO_BACKUP_SCHEDULE", "0 3 * * 1"),
		Backup:              loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if len(c.BaseCurrency) != 3 {
		return fmt.Errorf("base currency must be a 3-letter code, got %q", c.BaseCurrency)
	}
	if c.Backup != nil && c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backup enabled but FOLIO_BACKUP_BUCKET not set")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads cloud backup configuration from environment variables
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("FOLIO_BACKUP_ENABLED", false),
		Endpoint:        getEnv("FOLIO_BACKUP_ENDPOINT", ""),
		Region:          getEnv("FOLIO_BACKUP_REGION", "auto"),
		Bucket:          getEnv("FOLIO_BACKUP_BUCKET", ""),
		AccessKeyID:     getEnv("FOLIO_BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("FOLIO_BACKUP_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("FOLIO_BACKUP_RETENTION_DAYS", 30),
	}
}
