package instruments

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
)

// Service implements the instrument directory operations
type Service struct {
	repo   *Repository
	db     *sql.DB
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a new instrument service
func NewService(repo *Repository, db *sql.DB, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		db:     db,
		events: eventManager,
		log:    log.With().Str("service", "instruments").Logger(),
	}
}

// Resolve maps an identifier to its instrument. Returns nil, nil when unknown.
func (s *Service) Resolve(ctx context.Context, idType IdentifierType, value string) (*Instrument, error) {
	return s.ResolveAsOf(ctx, idType, value, nil)
}

// ResolveAsOf is Resolve restricted to identifiers valid on asOf
func (s *Service) ResolveAsOf(ctx context.Context, idType IdentifierType, value string, asOf *time.Time) (*Instrument, error) {
	if !idType.Valid() {
		return nil, domain.NewValidationError("unknown identifier type %q", idType)
	}
	if NormalizeValue(value) == "" {
		return nil, domain.NewValidationError("identifier value is required")
	}

	return s.repo.Resolve(ctx, idType, value, asOf)
}

// Create registers a new instrument without identifiers
func (s *Service) Create(ctx context.Context, instrumentType InstrumentType, name string) (*Instrument, error) {
	if err := validateInstrument(instrumentType, name); err != nil {
		return nil, err
	}

	inst := &Instrument{Type: instrumentType, Name: strings.TrimSpace(name)}
	if err := s.repo.Create(ctx, inst); err != nil {
		return nil, err
	}

	s.log.Info().Int64("instrument_id", inst.ID).Str("name", inst.Name).Msg("Instrument created")
	return inst, nil
}

// Get returns an instrument with its identifiers
func (s *Service) Get(ctx context.Context, id int64) (*Instrument, error) {
	inst, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, domain.NewNotFoundError("instrument %d", id)
	}

	idents, err := s.repo.ListIdentifiers(ctx, id)
	if err != nil {
		return nil, err
	}
	inst.Identifiers = idents

	return inst, nil
}

// List returns all instruments
func (s *Service) List(ctx context.Context) ([]Instrument, error) {
	return s.repo.List(ctx)
}

// Update changes the type and name of an instrument
func (s *Service) Update(ctx context.Context, id int64, instrumentType InstrumentType, name string) (*Instrument, error) {
	if err := validateInstrument(instrumentType, name); err != nil {
		return nil, err
	}

	found, err := s.repo.Update(ctx, id, instrumentType, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewNotFoundError("instrument %d", id)
	}

	s.log.Info().Int64("instrument_id", id).Msg("Instrument updated")
	s.emitChanged(id, "updated")

	return s.Get(ctx, id)
}

// ListIdentifiers returns the identifiers of an instrument
func (s *Service) ListIdentifiers(ctx context.Context, id int64) ([]Identifier, error) {
	if _, err := s.requireInstrument(ctx, s.repo, id); err != nil {
		return nil, err
	}
	return s.repo.ListIdentifiers(ctx, id)
}

// AddIdentifier attaches an identifier. Fails with a conflict when the same
// (instrument, type, value) is already present.
func (s *Service) AddIdentifier(ctx context.Context, instrumentID int64, idType IdentifierType, value string, validFrom, validTo *time.Time) (*Identifier, error) {
	if !idType.Valid() {
		return nil, domain.NewValidationError("unknown identifier type %q", idType)
	}
	if NormalizeValue(value) == "" {
		return nil, domain.NewValidationError("identifier value is required")
	}
	if validFrom != nil && validTo != nil && validTo.Before(*validFrom) {
		return nil, domain.NewValidationError("valid_to %s is before valid_from %s", domain.FormatDate(*validTo), domain.FormatDate(*validFrom))
	}

	if _, err := s.requireInstrument(ctx, s.repo, instrumentID); err != nil {
		return nil, err
	}

	exists, err := s.repo.IdentifierExists(ctx, instrumentID, idType, value)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.NewConflictError("identifier %s %q already exists on instrument %d", idType, NormalizeValue(value), instrumentID)
	}

	ident := &Identifier{
		InstrumentID: instrumentID,
		Type:         idType,
		Value:        value,
		ValidFrom:    validFrom,
		ValidTo:      validTo,
	}
	if err := s.repo.AddIdentifier(ctx, ident); err != nil {
		return nil, err
	}

	s.emitChanged(instrumentID, "identifier_added")

	return ident, nil
}

// emitChanged announces a change to display labels of an instrument
func (s *Service) emitChanged(instrumentID int64, change string) {
	s.events.Emit("instruments", &events.InstrumentChangedData{
		InstrumentID: instrumentID,
		Action:       change,
	})
}

// Migrate folds the source instrument into the target: identifiers, transactions, holdings and
// corporate actions move to the target and the source is deleted, all in one transaction.
func (s *Service) Migrate(ctx context.Context, sourceID, targetID int64) (*MigrationResult, error) {
	if sourceID == targetID {
		return nil, domain.NewConflictError("cannot migrate instrument %d into itself", sourceID)
	}

	result := &MigrationResult{SourceID: sourceID, TargetID: targetID}

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		if _, err := s.requireInstrument(ctx, repo, sourceID); err != nil {
			return err
		}
		if _, err := s.requireInstrument(ctx, repo, targetID); err != nil {
			return err
		}

		affected, err := repo.affectedPortfolios(ctx, sourceID)
		if err != nil {
			return err
		}
		result.AffectedPortfolioIDs = affected

		if result.IdentifiersMoved, result.IdentifiersDropped, err = repo.moveIdentifiers(ctx, sourceID, targetID); err != nil {
			return err
		}
		if result.TransactionsRepointed, result.TransactionsDeduplicated, err = repo.repointTransactions(ctx, sourceID, targetID); err != nil {
			return err
		}
		if result.HoldingsMerged, result.HoldingsRepointed, err = repo.mergeHoldings(ctx, sourceID, targetID); err != nil {
			return err
		}
		if result.CorporateActionsRepointed, result.CorporateActionsDropped, err = repo.repointCorporateActions(ctx, sourceID, targetID); err != nil {
			return err
		}

		return repo.Delete(ctx, sourceID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("source_id", sourceID).
		Int64("target_id", targetID).
		Int("identifiers_moved", result.IdentifiersMoved).
		Int("transactions_repointed", result.TransactionsRepointed).
		Int("holdings_merged", result.HoldingsMerged).
		Msg("Instrument migrated")

	s.events.Emit("instruments", &events.InstrumentMigratedData{
		SourceID:              sourceID,
		TargetID:              targetID,
		AffectedPortfolioIDs:  result.AffectedPortfolioIDs,
		TransactionsRepointed: result.TransactionsRepointed,
		HoldingsMerged:        result.HoldingsMerged,
	})

	return result, nil
}

// Delete removes an instrument that nothing references any more
func (s *Service) Delete(ctx context.Context, id int64) error {
	return database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		if _, err := s.requireInstrument(ctx, repo, id); err != nil {
			return err
		}

		deps, err := repo.CountDependents(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return domain.NewConflictError("instrument %d has dependents (%d transactions, %d holdings, %d corporate actions)",
				id, deps.Transactions, deps.Holdings, deps.CorporateActions)
		}

		return repo.Delete(ctx, id)
	})
}

// DisplaySymbols returns a display label per instrument following DisplayOrder,
// falling back to the instrument name
func (s *Service) DisplaySymbols(ctx context.Context, instrumentIDs []int64) (map[int64]string, error) {
	idents, err := s.repo.ListIdentifiersFor(ctx, instrumentIDs)
	if err != nil {
		return nil, err
	}

	symbols := make(map[int64]string, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if symbol := pickDisplayIdentifier(idents[id]); symbol != "" {
			symbols[id] = symbol
		}
	}

	return symbols, nil
}

func pickDisplayIdentifier(idents []Identifier) string {
	now := time.Now().UTC()
	for _, want := range DisplayOrder {
		for _, ident := range idents {
			if ident.Type == want && ident.ActiveAt(now) {
				return ident.Value
			}
		}
	}
	return ""
}

func (s *Service) requireInstrument(ctx context.Context, repo *Repository, id int64) (*Instrument, error) {
	inst, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument %d: %w", id, err)
	}
	if inst == nil {
		return nil, domain.NewNotFoundError("instrument %d", id)
	}
	return inst, nil
}

func validateInstrument(instrumentType InstrumentType, name string) error {
	if !instrumentType.Valid() {
		return domain.NewValidationError("unknown instrument type %q", instrumentType)
	}
	if strings.TrimSpace(name) == "" {
		return domain.NewValidationError("instrument name is required")
	}
	return nil
}
