package corporateactions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
)

var hundred = decimal.NewFromInt(100)

// Service implements the corporate action registry
type Service struct {
	repo   *Repository
	db     *sql.DB
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a new corporate action service
func NewService(repo *Repository, db *sql.DB, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		db:     db,
		events: eventManager,
		log:    log.With().Str("service", "corporate_actions").Logger(),
	}
}

// Create validates and stores a new action
func (s *Service) Create(ctx context.Context, action CorporateAction) (*CorporateAction, error) {
	normalize(&action)
	if err := validate(&action); err != nil {
		return nil, err
	}

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if err := requireInstruments(ctx, repo, &action); err != nil {
			return err
		}
		return repo.Create(ctx, &action)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("corporate_action_id", action.ID).
		Str("type", string(action.Type)).
		Int64("parent_instrument_id", action.ParentInstrumentID).
		Str("ex_date", domain.FormatDate(action.ExDate)).
		Msg("Corporate action created")
	s.emitChanged(&action, "created")

	return &action, nil
}

// Update replaces an existing action
func (s *Service) Update(ctx context.Context, id int64, action CorporateAction) (*CorporateAction, error) {
	normalize(&action)
	if err := validate(&action); err != nil {
		return nil, err
	}
	action.ID = id

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NewNotFoundError("corporate action %d", id)
		}
		action.CreatedAt = existing.CreatedAt

		if err := requireInstruments(ctx, repo, &action); err != nil {
			return err
		}

		found, err := repo.Update(ctx, &action)
		if err != nil {
			return err
		}
		if !found {
			return domain.NewNotFoundError("corporate action %d", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("corporate_action_id", id).Msg("Corporate action updated")
	s.emitChanged(&action, "updated")

	return &action, nil
}

// Delete removes an action
func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError("corporate action %d", id)
	}

	s.log.Info().Int64("corporate_action_id", id).Msg("Corporate action deleted")
	s.emitChanged(existing, "deleted")

	return nil
}

// Get returns one action
func (s *Service) Get(ctx context.Context, id int64) (*CorporateAction, error) {
	action, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, domain.NewNotFoundError("corporate action %d", id)
	}
	return action, nil
}

// List returns every action
func (s *Service) List(ctx context.Context) ([]CorporateAction, error) {
	return s.repo.List(ctx)
}

// GetByInstrument returns actions where the instrument is parent or child, newest first
func (s *Service) GetByInstrument(ctx context.Context, instrumentID int64) ([]CorporateAction, error) {
	return s.repo.GetByInstrument(ctx, instrumentID)
}

// GetApplicable returns the parent-side actions of an instrument in application order
func (s *Service) GetApplicable(ctx context.Context, instrumentID int64, before *time.Time) ([]CorporateAction, error) {
	return s.repo.GetApplicable(ctx, instrumentID, before)
}

func (s *Service) emitChanged(action *CorporateAction, change string) {
	s.events.Emit("corporate_actions", &events.CorporateActionChangedData{
		CorporateActionID:  action.ID,
		ParentInstrumentID: action.ParentInstrumentID,
		Action:             change,
	})
}

func normalize(action *CorporateAction) {
	action.ExDate = domain.TruncateToDate(action.ExDate)
	action.Notes = strings.TrimSpace(action.Notes)
}

func validate(action *CorporateAction) error {
	if !action.Type.Valid() {
		return domain.NewValidationError("unknown corporate action type %q", action.Type)
	}
	if action.ExDate.IsZero() {
		return domain.NewValidationError("ex_date is required")
	}
	if action.ParentInstrumentID <= 0 {
		return domain.NewValidationError("parent_instrument_id is required")
	}
	if !action.RatioNumerator.IsPositive() || !action.RatioDenominator.IsPositive() {
		return domain.NewValidationError("ratio numerator and denominator must be positive")
	}
	if action.CostPercentageAllocated.IsNegative() || action.CostPercentageAllocated.GreaterThan(hundred) {
		return domain.NewValidationError("cost_percentage_allocated must be between 0 and 100")
	}
	if action.Type.RequiresChild() && action.ChildInstrumentID == nil {
		return domain.NewValidationError("%s requires child_instrument_id", action.Type)
	}
	if action.ChildInstrumentID != nil && *action.ChildInstrumentID == action.ParentInstrumentID {
		return domain.NewValidationError("child_instrument_id must differ from parent_instrument_id")
	}
	return nil
}

func requireInstruments(ctx context.Context, repo *Repository, action *CorporateAction) error {
	ids := []int64{action.ParentInstrumentID}
	if action.ChildInstrumentID != nil {
		ids = append(ids, *action.ChildInstrumentID)
	}

	for _, id := range ids {
		exists, err := repo.InstrumentExists(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to verify instrument: %w", err)
		}
		if !exists {
			return domain.NewNotFoundError("instrument %d", id)
		}
	}
	return nil
}
