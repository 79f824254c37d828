package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTVAULT_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.1, cfg.DustThreshold)
	assert.Equal(t, 30*time.Second, cfg.RecalcTimeout)
	assert.Equal(t, 4, cfg.RecalcParallelism)
	assert.True(t, cfg.ImportAutoCreate)
	assert.Equal(t, "0 0 3 * * *", cfg.RecalcSchedule)
	assert.Equal(t, "0 0 2 * * *", cfg.MaintenanceSchedule)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, filepath.Join(dir, "portvault.db"), cfg.DatabasePath())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORTVAULT_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DUST_THRESHOLD", "0.001")
	t.Setenv("RECALC_TIMEOUT", "5s")
	t.Setenv("IMPORT_AUTO_CREATE", "false")
	t.Setenv("BACKUP_S3_BUCKET", "vault-backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 0.001, cfg.DustThreshold)
	assert.Equal(t, 5*time.Second, cfg.RecalcTimeout)
	assert.False(t, cfg.ImportAutoCreate)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, "portvault", cfg.Backup.Prefix)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("PORTVAULT_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-number")
	t.Setenv("RECALC_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RecalcTimeout)
}

func TestLoad_RejectsNonPositiveDustThreshold(t *testing.T) {
	t.Setenv("PORTVAULT_DATA_DIR", t.TempDir())
	t.Setenv("DUST_THRESHOLD", "-1")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataDir:              "/data",
			Port:                 8080,
			DustThreshold:        0.1,
			RecalcParallelism:    2,
			RecalcTimeout:        time.Second,
			ImportRateLimit:      1,
			ImportRateLimitBurst: 1,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"zero parallelism", func(c *Config) { c.RecalcParallelism = 0 }},
		{"zero timeout", func(c *Config) { c.RecalcTimeout = 0 }},
		{"zero burst", func(c *Config) { c.ImportRateLimitBurst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
