package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/config"
	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

// InitializeDatabases opens portvault.db with the ledger profile and applies the schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger, // the transaction history is the source of truth
		Name:    "portvault",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portvault database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate portvault database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized")

	return &Container{DB: db}, nil
}
