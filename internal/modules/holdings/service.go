package holdings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
)

// Options tunes recalculation
type Options struct {
	DustThreshold decimal.Decimal
	Parallelism   int           // portfolios recalculated concurrently by RecalculateAll
	Timeout       time.Duration // per portfolio; zero means no bound beyond the caller's context
	CacheTTL      time.Duration
}

// Service rebuilds and serves holdings snapshots
type Service struct {
	repo         *Repository
	transactions *transactions.Repository
	actions      *corporateactions.Repository
	instruments  *instruments.Service
	portfolios   *portfolios.Service
	engine       *Engine
	db           *sql.DB
	events       *events.Manager
	views        *viewCache
	locks        *portfolioLocks
	options      Options
	log          zerolog.Logger
}

// NewService creates a new holdings service and subscribes its cache to the events that
// change holdings outside a recalculation
func NewService(
	repo *Repository,
	txRepo *transactions.Repository,
	actionRepo *corporateactions.Repository,
	instrumentService *instruments.Service,
	portfolioService *portfolios.Service,
	engine *Engine,
	db *sql.DB,
	eventManager *events.Manager,
	options Options,
	log zerolog.Logger,
) *Service {
	if options.Parallelism <= 0 {
		options.Parallelism = 1
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = 10 * time.Minute
	}

	s := &Service{
		repo:         repo,
		transactions: txRepo,
		actions:      actionRepo,
		instruments:  instrumentService,
		portfolios:   portfolioService,
		engine:       engine,
		db:           db,
		events:       eventManager,
		views:        newViewCache(options.CacheTTL),
		locks:        newPortfolioLocks(),
		options:      options,
		log:          log.With().Str("service", "holdings").Logger(),
	}

	if bus := eventManager.Bus(); bus != nil {
		bus.Subscribe(events.InstrumentMigrated, func(e *events.Event) {
			if data, ok := e.Data.(*events.InstrumentMigratedData); ok {
				for _, id := range data.AffectedPortfolioIDs {
					s.invalidate(id)
				}
			}
		})
		bus.Subscribe(events.PortfolioCleared, func(e *events.Event) {
			if data, ok := e.Data.(*events.PortfolioClearedData); ok {
				s.invalidate(data.PortfolioID)
			}
		})
		// Names and symbols are shared across portfolios
		bus.Subscribe(events.InstrumentChanged, func(e *events.Event) {
			s.views.invalidateAll()
		})
	}

	return s
}

// RecalculatePortfolio rebuilds one snapshot; satisfies domain.HoldingsRecalculator
func (s *Service) RecalculatePortfolio(ctx context.Context, portfolioID int64) error {
	_, err := s.RecalculateHoldings(ctx, portfolioID)
	return err
}

// RecalculateHoldings recomputes a portfolio's holdings from its full history and replaces
// the stored snapshot in one transaction. Concurrent calls for the same portfolio run one
// after another; on any failure the previous snapshot stays in place.
func (s *Service) RecalculateHoldings(ctx context.Context, portfolioID int64) (*RecalculationResult, error) {
	if _, err := s.portfolios.Get(ctx, portfolioID); err != nil {
		return nil, err
	}

	if s.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.Timeout)
		defer cancel()
	}

	unlock, err := s.locks.Lock(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to recalculate holdings of portfolio %d: %w", portfolioID, err)
	}
	defer unlock()

	start := time.Now()
	var rec Reconciliation

	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		txs, err := s.transactions.WithTx(tx).ListByPortfolio(ctx, portfolioID)
		if err != nil {
			return err
		}

		actions, err := s.actions.WithTx(tx).GetApplicableForInstruments(ctx, distinctInstruments(txs))
		if err != nil {
			return err
		}

		rec = s.engine.Reconcile(portfolioID, txs, actions)

		if err := ctx.Err(); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Replace(ctx, portfolioID, rec.Holdings, rec.Invested)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to recalculate holdings of portfolio %d: %w", portfolioID, err)
	}

	s.invalidate(portfolioID)

	for _, a := range rec.Oversold {
		s.log.Warn().
			Int64("portfolio_id", portfolioID).
			Int64("instrument_id", a.InstrumentID).
			Str("net_quantity", a.Quantity.String()).
			Msg("More sold than bought, position dropped")
	}

	result := &RecalculationResult{
		PortfolioID:  portfolioID,
		Holdings:     len(rec.Holdings),
		Transactions: rec.Transactions,
		Dust:         rec.Dust,
		Oversold:     rec.Oversold,
		Invested:     rec.Invested.String(),
		Duration:     time.Since(start).String(),
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Int("holdings", result.Holdings).
		Int("transactions", result.Transactions).
		Int("dust", len(rec.Dust)).
		Dur("duration", time.Since(start)).
		Msg("Holdings recalculated")

	s.events.Emit("holdings", &events.HoldingsRecalculatedData{
		PortfolioID:  portfolioID,
		Holdings:     result.Holdings,
		Transactions: result.Transactions,
		Dust:         len(rec.Dust),
		Oversold:     len(rec.Oversold),
	})

	return result, nil
}

// RecalculateAll rebuilds every portfolio with bounded parallelism. One failing portfolio
// does not stop the others; the first error is returned.
func (s *Service) RecalculateAll(ctx context.Context) error {
	ids, err := s.portfolios.ListIDs(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.options.Parallelism)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.RecalculateHoldings(ctx, id); err != nil {
				s.log.Error().Err(err).Int64("portfolio_id", id).Msg("Recalculation failed")
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info().Int("portfolios", len(ids)).Msg("All holdings recalculated")
	return nil
}

// GetHoldings returns the stored snapshot with display labels
func (s *Service) GetHoldings(ctx context.Context, portfolioID int64) ([]HoldingView, error) {
	if cached, ok := s.views.get(portfolioID); ok {
		return cached, nil
	}
	gen := s.views.generation(portfolioID)

	list, err := s.repo.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(list))
	for i, h := range list {
		ids[i] = h.InstrumentID
	}

	symbols, err := s.instruments.DisplaySymbols(ctx, ids)
	if err != nil {
		return nil, err
	}
	labels, err := s.repo.InstrumentLabels(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	views := make([]HoldingView, 0, len(list))
	for _, h := range list {
		label := labels[h.InstrumentID]
		symbol, ok := symbols[h.InstrumentID]
		if !ok {
			symbol = label.Name
		}
		views = append(views, HoldingView{
			InstrumentID: h.InstrumentID,
			Symbol:       symbol,
			Name:         label.Name,
			Type:         label.Type,
			Quantity:     h.Quantity.String(),
			AvgPrice:     h.AvgPrice.String(),
			Invested:     h.Invested().String(),
		})
	}

	if !s.views.put(portfolioID, gen, views) {
		s.log.Debug().Int64("portfolio_id", portfolioID).Msg("Holdings changed while building view, not cached")
	}
	return views, nil
}

func (s *Service) invalidate(portfolioID int64) {
	s.views.invalidate(portfolioID)
}

func distinctInstruments(txs []transactions.Transaction) []int64 {
	seen := make(map[int64]struct{})
	ids := []int64{}
	for _, t := range txs {
		if _, ok := seen[t.InstrumentID]; !ok {
			seen[t.InstrumentID] = struct{}{}
			ids = append(ids, t.InstrumentID)
		}
	}
	return ids
}
