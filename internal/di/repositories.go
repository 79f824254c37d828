package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/holdings"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
)

// InitializeRepositories creates all repositories on the container's database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database is not initialized")
	}

	conn := container.DB.Conn()

	container.InstrumentRepo = instruments.NewRepository(conn, log)
	container.CorporateActionRepo = corporateactions.NewRepository(conn, log)
	container.PortfolioRepo = portfolios.NewRepository(conn, log)
	container.UploadRepo = portfolios.NewUploadRepository(conn, log)
	container.TransactionRepo = transactions.NewRepository(conn, log)
	container.HoldingsRepo = holdings.NewRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
