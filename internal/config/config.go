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
	DataDir  string // Base directory for the database and backups (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Holdings reconciliation
	DustThreshold     float64       // Net quantities below this are treated as closed positions
	RecalcTimeout     time.Duration // Upper bound for a single portfolio recalculation
	RecalcParallelism int           // Portfolios recalculated concurrently by RecalculateAll
	HoldingsCacheTTL  time.Duration

	// Import
	ImportAutoCreate     bool // Create instruments for identifiers that cannot be resolved
	ImportRateLimit      float64
	ImportRateLimitBurst int

	// Scheduler (cron expressions with seconds)
	RecalcSchedule      string
	BackupSchedule      string
	MaintenanceSchedule string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled without a bucket.
type BackupConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, MinIO)
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int // 0 keeps every backup
}

// Enabled reports whether backups have somewhere to go
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PORTVAULT_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DustThreshold:     getEnvAsFloat("DUST_THRESHOLD", 0.1),
		RecalcTimeout:     getEnvAsDuration("RECALC_TIMEOUT", 30*time.Second),
		RecalcParallelism: getEnvAsInt("RECALC_PARALLELISM", 4),
		HoldingsCacheTTL:  getEnvAsDuration("HOLDINGS_CACHE_TTL", 10*time.Minute),

		ImportAutoCreate:     getEnvAsBool("IMPORT_AUTO_CREATE", true),
		ImportRateLimit:      getEnvAsFloat("IMPORT_RATE_LIMIT", 2),
		ImportRateLimitBurst: getEnvAsInt("IMPORT_RATE_LIMIT_BURST", 5),

		RecalcSchedule:      getEnv("RECALC_SCHEDULE", "0 0 3 * * *"),
		BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 2 * * *"),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the portvault database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "portvault.db")
}

// Validate checks configuration values that would break the engine
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DustThreshold <= 0 {
		return fmt.Errorf("dust threshold must be positive, got %v", c.DustThreshold)
	}
	if c.RecalcParallelism <= 0 {
		return fmt.Errorf("recalculation parallelism must be positive, got %d", c.RecalcParallelism)
	}
	if c.RecalcTimeout <= 0 {
		return fmt.Errorf("recalculation timeout must be positive, got %s", c.RecalcTimeout)
	}
	if c.ImportRateLimit <= 0 || c.ImportRateLimitBurst <= 0 {
		return fmt.Errorf("import rate limit and burst must be positive")
	}
	return nil
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		Prefix:          getEnv("BACKUP_S3_PREFIX", "portvault"),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
