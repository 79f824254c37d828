package portfolios

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
)

const maxNameLength = 100

// Service implements portfolio operations scoped to their owning user
type Service struct {
	repo    *Repository
	uploads *UploadRepository
	db      *sql.DB
	events  *events.Manager
	log     zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(repo *Repository, uploads *UploadRepository, db *sql.DB, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		uploads: uploads,
		db:      db,
		events:  eventManager,
		log:     log.With().Str("service", "portfolios").Logger(),
	}
}

// Create adds a portfolio for a user
func (s *Service) Create(ctx context.Context, userID, name string) (*Portfolio, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{UserID: userID, Name: name}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, errDuplicateName) {
			return nil, domain.NewConflictError("portfolio %q already exists", name)
		}
		return nil, err
	}

	s.log.Info().Int64("portfolio_id", p.ID).Str("user_id", userID).Msg("Portfolio created")
	return p, nil
}

// Get returns a portfolio regardless of owner
func (s *Service) Get(ctx context.Context, id int64) (*Portfolio, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NewNotFoundError("portfolio %d", id)
	}
	return p, nil
}

// GetForUser returns a portfolio owned by userID. Portfolios of other users are reported
// as not found.
func (s *Service) GetForUser(ctx context.Context, userID string, id int64) (*Portfolio, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserID != userID {
		return nil, domain.NewNotFoundError("portfolio %d", id)
	}
	return p, nil
}

// Authorize fails with not-found unless userID owns the portfolio
func (s *Service) Authorize(ctx context.Context, userID string, portfolioID int64) error {
	_, err := s.GetForUser(ctx, userID, portfolioID)
	return err
}

// ListByUser returns the portfolios of a user
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Portfolio, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListIDs returns every portfolio id
func (s *Service) ListIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListIDs(ctx)
}

// Rename changes the name of a user's portfolio
func (s *Service) Rename(ctx context.Context, userID string, id int64, name string) (*Portfolio, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	p, err := s.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Rename(ctx, id, name); err != nil {
		if errors.Is(err, errDuplicateName) {
			return nil, domain.NewConflictError("portfolio %q already exists", name)
		}
		return nil, err
	}

	p.Name = name
	return p, nil
}

// Clear removes every transaction and holding of a portfolio, keeping the portfolio itself
func (s *Service) Clear(ctx context.Context, userID string, id int64) (*ClearResult, error) {
	if _, err := s.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}

	var result *ClearResult
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		result, err = s.repo.WithTx(tx).ClearLedger(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("portfolio_id", id).
		Int64("transactions_removed", result.TransactionsRemoved).
		Msg("Portfolio cleared")
	s.emitCleared(result)

	return result, nil
}

// Delete removes a portfolio together with its transactions, holdings and upload audit
func (s *Service) Delete(ctx context.Context, userID string, id int64) (*ClearResult, error) {
	if _, err := s.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}

	var result *ClearResult
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		var err error
		if result, err = repo.ClearLedger(ctx, id); err != nil {
			return err
		}
		if result.UploadsRemoved, err = s.uploads.WithTx(tx).DeleteByPortfolio(ctx, id); err != nil {
			return err
		}
		result.Deleted = true

		return repo.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("portfolio_id", id).Msg("Portfolio deleted")
	s.emitCleared(result)

	return result, nil
}

// ListUploads returns the upload audit trail of a user's portfolio
func (s *Service) ListUploads(ctx context.Context, userID string, id int64) ([]FileUpload, error) {
	if _, err := s.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.uploads.ListByPortfolio(ctx, id)
}

func (s *Service) emitCleared(result *ClearResult) {
	s.events.Emit("portfolios", &events.PortfolioClearedData{
		PortfolioID:         result.PortfolioID,
		TransactionsRemoved: result.TransactionsRemoved,
		Deleted:             result.Deleted,
	})
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.NewValidationError("portfolio name is required")
	}
	if len(name) > maxNameLength {
		return "", domain.NewValidationError("portfolio name exceeds %d characters", maxNameLength)
	}
	return name, nil
}
