// Package di wires the databases, repositories, services and jobs of the application.
package di

import (
	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/holdings"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
	"github.com/midtierhuman/PortVault-sub000/internal/reliability"
	"github.com/midtierhuman/PortVault-sub000/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server for access to services.
type Container struct {
	// Database
	DB *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	InstrumentRepo      *instruments.Repository
	CorporateActionRepo *corporateactions.Repository
	PortfolioRepo       *portfolios.Repository
	UploadRepo          *portfolios.UploadRepository
	TransactionRepo     *transactions.Repository
	HoldingsRepo        *holdings.Repository

	// Services
	InstrumentService      *instruments.Service
	CorporateActionService *corporateactions.Service
	PortfolioService       *portfolios.Service
	TransactionService     *transactions.Service
	HoldingsService        *holdings.Service
	BackupService          *reliability.BackupService

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds registered jobs for manual triggering via API
type JobInstances struct {
	RecalculateHoldings scheduler.Job
	DatabaseBackup      scheduler.Job
	Maintenance         scheduler.Job
}

// Close releases the database
func (c *Container) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
