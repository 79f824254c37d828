package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/config"
	"github.com/midtierhuman/PortVault-sub000/internal/reliability"
	"github.com/midtierhuman/PortVault-sub000/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers background jobs.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.HoldingsService == nil {
		return nil, fmt.Errorf("services are not initialized")
	}

	container.Scheduler = scheduler.New(log)

	// A full rebuild may touch every portfolio in turn
	recalcTimeout := cfg.RecalcTimeout * 10

	instances := &JobInstances{
		RecalculateHoldings: scheduler.NewRecalculateHoldingsJob(container.HoldingsService, recalcTimeout, log),
		DatabaseBackup:      scheduler.NewDatabaseBackupJob(container.BackupService, 0, log),
		Maintenance:         reliability.NewMaintenanceJob(container.DB, log),
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.RecalcSchedule, instances.RecalculateHoldings},
		{cfg.BackupSchedule, instances.DatabaseBackup},
		{cfg.MaintenanceSchedule, instances.Maintenance},
	}

	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", s.job.Name(), err)
		}
	}

	return instances, nil
}
