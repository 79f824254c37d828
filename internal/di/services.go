package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/config"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/holdings"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
	"github.com/midtierhuman/PortVault-sub000/internal/reliability"
)

// InitializeServices creates the event bus and all services.
// Order matters: holdings is the recalculator the transaction service calls after imports.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.TransactionRepo == nil {
		return fmt.Errorf("repositories are not initialized")
	}

	conn := container.DB.Conn()

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.InstrumentService = instruments.NewService(container.InstrumentRepo, conn, container.EventManager, log)
	container.CorporateActionService = corporateactions.NewService(container.CorporateActionRepo, conn, container.EventManager, log)
	container.PortfolioService = portfolios.NewService(container.PortfolioRepo, container.UploadRepo, conn, container.EventManager, log)

	dustThreshold := decimal.NewFromFloat(cfg.DustThreshold)
	engine := holdings.NewEngine(corporateactions.NewAdjuster(), dustThreshold)

	container.HoldingsService = holdings.NewService(
		container.HoldingsRepo,
		container.TransactionRepo,
		container.CorporateActionRepo,
		container.InstrumentService,
		container.PortfolioService,
		engine,
		conn,
		container.EventManager,
		holdings.Options{
			DustThreshold: dustThreshold,
			Parallelism:   cfg.RecalcParallelism,
			Timeout:       cfg.RecalcTimeout,
			CacheTTL:      cfg.HoldingsCacheTTL,
		},
		log,
	)

	container.TransactionService = transactions.NewService(
		container.TransactionRepo,
		container.InstrumentRepo,
		container.PortfolioService,
		container.UploadRepo,
		container.HoldingsService,
		conn,
		container.EventManager,
		transactions.ImportOptions{AutoCreate: cfg.ImportAutoCreate},
		log,
	)

	var (
		store         reliability.ObjectStore
		prefix        string
		retentionDays int
	)
	if cfg.Backup.Enabled() {
		s3Store, err := reliability.NewS3Store(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		store = s3Store
		prefix = cfg.Backup.Prefix
		retentionDays = cfg.Backup.RetentionDays
	} else {
		log.Warn().Msg("BACKUP_S3_BUCKET not set, database backups disabled")
	}
	container.BackupService = reliability.NewBackupService(
		container.DB, store, prefix, cfg.DataDir, retentionDays, log)

	log.Debug().Msg("Services initialized")
	return nil
}
