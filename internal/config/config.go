// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for databases and snapshots (always absolute)
	Port            int
	LogLevel        string
	DevMode         bool
	DisplayCurrency string // Currency used for portfolio totals

	// Refresh policy
	QuoteStaleness  time.Duration // Max age of cached valuations before a refresh cycle runs
	RefreshSchedule string        // Cron schedule for the background refresh job
	PrimaryExchange string        // Exchange whose core trading hours gate the skip policy

	// Optional snapshot backup to S3-compatible storage
	Backup *BackupConfig
}

// BackupConfig holds snapshot backup configuration.
// Backups are disabled unless all required fields are set.
type BackupConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Enabled reports whether the backup target is fully configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Endpoint != "" && b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
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
		DataDir:         absDataDir,
		Port:            getEnvAsInt("FOLIO_PORT", 8010),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DisplayCurrency: getEnv("DISPLAY_CURRENCY", "EUR"),
		QuoteStaleness:  getEnvAsDuration("QUOTE_STALENESS", time.Hour),
		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "0 */15 * * * *"),
		PrimaryExchange: getEnv("PRIMARY_EXCHANGE", "XNYS"),
		Backup:          loadBackupConfig(),
	}

	return cfg, nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	cfg := &BackupConfig{
		Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
		AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
		Region:    getEnv("BACKUP_S3_REGION", "auto"),
	}
	if !cfg.Enabled() {
		return nil
	}
	return cfg
}
