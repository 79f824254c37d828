package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

// MaintenanceJob checks integrity and truncates the WAL of the portvault database
type MaintenanceJob struct {
	db      *database.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		timeout: 5 * time.Minute,
		log:     log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()

	// Corruption is not recoverable here; stop and report
	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Database integrity check failed")
		return fmt.Errorf("database %s failed health check: %w", j.db.Name(), err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	stats, err := j.db.GetStats()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read database stats")
	} else {
		j.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Int64("freelist_count", stats.FreelistCount).
			Dur("duration_ms", time.Since(start)).
			Msg("Database maintenance completed")
	}

	return nil
}

// Name returns the job name for the scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}
