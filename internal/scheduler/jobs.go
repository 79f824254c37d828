package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/reliability"
)

// HoldingsRecalculator rebuilds every portfolio snapshot
type HoldingsRecalculator interface {
	RecalculateAll(ctx context.Context) error
}

// Backuper snapshots and ships the database
type Backuper interface {
	CreateAndUpload(ctx context.Context) (*reliability.BackupResult, error)
	RotateOldBackups(ctx context.Context) (int, error)
}

// RecalculateHoldingsJob rebuilds all holdings, repairing snapshots left stale by failed
// recalculations after imports
type RecalculateHoldingsJob struct {
	recalculator HoldingsRecalculator
	timeout      time.Duration
	log          zerolog.Logger
}

// NewRecalculateHoldingsJob creates a new RecalculateHoldingsJob
func NewRecalculateHoldingsJob(recalculator HoldingsRecalculator, timeout time.Duration, log zerolog.Logger) *RecalculateHoldingsJob {
	return &RecalculateHoldingsJob{
		recalculator: recalculator,
		timeout:      timeout,
		log:          log.With().Str("job", "recalculate_all_holdings").Logger(),
	}
}

// Name returns the job name
func (j *RecalculateHoldingsJob) Name() string {
	return "recalculate_all_holdings"
}

// Run executes the job
func (j *RecalculateHoldingsJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := j.recalculator.RecalculateAll(ctx); err != nil {
		return err
	}

	j.log.Info().Dur("duration_ms", time.Since(start)).Msg("Scheduled recalculation completed")
	return nil
}

// DatabaseBackupJob uploads a database snapshot and rotates old ones
type DatabaseBackupJob struct {
	backup  Backuper
	timeout time.Duration
	log     zerolog.Logger
}

// NewDatabaseBackupJob creates a new DatabaseBackupJob
func NewDatabaseBackupJob(backup Backuper, timeout time.Duration, log zerolog.Logger) *DatabaseBackupJob {
	return &DatabaseBackupJob{
		backup:  backup,
		timeout: timeout,
		log:     log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseBackupJob) Name() string {
	return "database_backup"
}

// Run executes the job. Rotation failures are logged; the upload already succeeded.
func (j *DatabaseBackupJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	result, err := j.backup.CreateAndUpload(ctx)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	if _, err := j.backup.RotateOldBackups(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
