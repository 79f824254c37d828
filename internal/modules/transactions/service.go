package transactions

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
)

// ImportOptions tunes statement import
type ImportOptions struct {
	// AutoCreate registers an instrument for identifiers nothing resolves to
	AutoCreate bool
}

// Service implements ledger reads, corrections and batch import
type Service struct {
	repo         *Repository
	instruments  *instruments.Repository
	portfolios   *portfolios.Service
	uploads      *portfolios.UploadRepository
	recalculator domain.HoldingsRecalculator
	db           *sql.DB
	events       *events.Manager
	options      ImportOptions
	log          zerolog.Logger
}

// NewService creates a new transaction service. recalculator may be nil, in which case
// holdings are left for an explicit recalculation.
func NewService(
	repo *Repository,
	instrumentRepo *instruments.Repository,
	portfolioService *portfolios.Service,
	uploads *portfolios.UploadRepository,
	recalculator domain.HoldingsRecalculator,
	db *sql.DB,
	eventManager *events.Manager,
	options ImportOptions,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		instruments:  instrumentRepo,
		portfolios:   portfolioService,
		uploads:      uploads,
		recalculator: recalculator,
		db:           db,
		events:       eventManager,
		options:      options,
		log:          log.With().Str("service", "transactions").Logger(),
	}
}

// List returns the ledger of a user's portfolio
func (s *Service) List(ctx context.Context, userID string, portfolioID int64) ([]Transaction, error) {
	if err := s.portfolios.Authorize(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	return s.repo.ListByPortfolio(ctx, portfolioID)
}

// Delete removes one transaction and refreshes the portfolio's holdings
func (s *Service) Delete(ctx context.Context, userID string, portfolioID, transactionID int64) error {
	if err := s.portfolios.Authorize(ctx, userID, portfolioID); err != nil {
		return err
	}

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		t, err := repo.Get(ctx, transactionID)
		if err != nil {
			return err
		}
		if t == nil || t.PortfolioID != portfolioID {
			return domain.NewNotFoundError("transaction %d", transactionID)
		}

		_, err = repo.Delete(ctx, transactionID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info().Int64("portfolio_id", portfolioID).Int64("transaction_id", transactionID).Msg("Transaction deleted")
	s.events.Emit("transactions", &events.TransactionDeletedData{
		PortfolioID:   portfolioID,
		TransactionID: transactionID,
	})
	s.recalculate(ctx, portfolioID)

	return nil
}

// Correct replaces the trade fields of a transaction and refreshes holdings
func (s *Service) Correct(ctx context.Context, userID string, portfolioID, transactionID int64, correction Transaction) (*Transaction, error) {
	if err := correction.Validate(); err != nil {
		return nil, err
	}
	if err := s.portfolios.Authorize(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	correction.TradeDate = domain.TruncateToDate(correction.TradeDate)

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.Get(ctx, transactionID)
		if err != nil {
			return err
		}
		if existing == nil || existing.PortfolioID != portfolioID {
			return domain.NewNotFoundError("transaction %d", transactionID)
		}

		inst, err := s.instruments.WithTx(tx).GetByID(ctx, correction.InstrumentID)
		if err != nil {
			return err
		}
		if inst == nil {
			return domain.NewNotFoundError("instrument %d", correction.InstrumentID)
		}

		correction.PortfolioID = portfolioID
		correction.ImportBatchID = existing.ImportBatchID
		correction.CreatedAt = existing.CreatedAt
		if correction.Symbol == "" {
			correction.Symbol = existing.Symbol
		}

		_, err = repo.Correct(ctx, transactionID, &correction)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("portfolio_id", portfolioID).Int64("transaction_id", transactionID).Msg("Transaction corrected")
	s.recalculate(ctx, portfolioID)

	return &correction, nil
}

// ImportTransactions adds a batch of statement records to a portfolio. Malformed or
// unresolvable rows are reported and skipped; duplicates are counted and skipped. All inserts
// and the upload audit row commit together.
func (s *Service) ImportTransactions(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := s.portfolios.Authorize(ctx, req.UserID, req.PortfolioID); err != nil {
		return nil, err
	}
	if len(req.Records) == 0 {
		return nil, domain.NewValidationError("import contains no records")
	}

	if req.FileHash == "" {
		hash, err := hashRecords(req.Records)
		if err != nil {
			return nil, err
		}
		req.FileHash = hash
	}
	if strings.TrimSpace(req.FileName) == "" {
		req.FileName = "api-import"
	}

	result := &ImportResult{
		BatchID: uuid.NewString(),
		Errors:  []RowError{},
	}

	previous, err := s.uploads.ExistsByHash(ctx, req.PortfolioID, req.FileHash)
	if err != nil {
		s.log.Warn().Err(err).Int64("portfolio_id", req.PortfolioID).Msg("Failed to check previous uploads")
	}
	result.PreviouslyUploaded = previous

	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		instRepo := s.instruments.WithTx(tx)

		for i, record := range req.Records {
			t, err := parseRecord(record)
			if err != nil {
				result.Errors = append(result.Errors, RowError{Row: i, Message: err.Error()})
				continue
			}

			inst, created, err := s.resolveInstrument(ctx, instRepo, record, t.TradeDate)
			if err != nil {
				if domain.IsValidation(err) {
					result.Errors = append(result.Errors, RowError{Row: i, Message: err.Error()})
					continue
				}
				return err
			}
			if created {
				result.InstrumentsCreated++
			}

			t.PortfolioID = req.PortfolioID
			t.InstrumentID = inst.ID
			t.ImportBatchID = result.BatchID

			inserted, err := repo.Insert(ctx, t)
			if err != nil {
				return err
			}
			if inserted {
				result.Added++
			} else {
				result.Duplicates++
			}
		}

		return s.uploads.WithTx(tx).Record(ctx, &portfolios.FileUpload{
			ID:               result.BatchID,
			PortfolioID:      req.PortfolioID,
			UserID:           req.UserID,
			FileName:         req.FileName,
			FileHash:         req.FileHash,
			TransactionCount: result.Added,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("portfolio_id", req.PortfolioID).
		Str("batch_id", result.BatchID).
		Int("added", result.Added).
		Int("duplicates", result.Duplicates).
		Int("errors", len(result.Errors)).
		Bool("previously_uploaded", result.PreviouslyUploaded).
		Msg("Transactions imported")

	s.events.Emit("transactions", &events.TransactionsImportedData{
		PortfolioID: req.PortfolioID,
		BatchID:     result.BatchID,
		Added:       result.Added,
		Duplicates:  result.Duplicates,
		Errors:      len(result.Errors),
	})

	if result.Added > 0 {
		result.RecalculationFailed = !s.recalculate(ctx, req.PortfolioID)
	}

	return result, nil
}

// recalculate refreshes holdings after a committed ledger change. Failures leave the previous
// snapshot in place and are reported but not returned.
func (s *Service) recalculate(ctx context.Context, portfolioID int64) bool {
	if s.recalculator == nil {
		return true
	}
	if err := s.recalculator.RecalculatePortfolio(ctx, portfolioID); err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Holdings recalculation after ledger change failed")
		s.events.EmitError("transactions", err, map[string]interface{}{"portfolio_id": portfolioID})
		return false
	}
	return true
}

type identifierCandidate struct {
	idType instruments.IdentifierType
	value  string
}

// identifierCandidates lists the identifiers of a record in resolution order
func identifierCandidates(record ImportRecord) []identifierCandidate {
	var candidates []identifierCandidate
	add := func(idType instruments.IdentifierType, value string) {
		if v := instruments.NormalizeValue(value); v != "" {
			candidates = append(candidates, identifierCandidate{idType: idType, value: v})
		}
	}

	add(instruments.IdentifierISIN, record.ISIN)
	add(instruments.IdentifierSchemeCode, record.SchemeCode)

	switch strings.ToUpper(strings.TrimSpace(record.Exchange)) {
	case "NSE":
		add(instruments.IdentifierNSESymbol, record.Symbol)
	case "BSE":
		add(instruments.IdentifierBSECode, record.Symbol)
	default:
		add(instruments.IdentifierNSESymbol, record.Symbol)
		add(instruments.IdentifierBSECode, record.Symbol)
		add(instruments.IdentifierTicker, record.Symbol)
	}

	return candidates
}

// resolveInstrument maps a record to an instrument, registering one when allowed
func (s *Service) resolveInstrument(ctx context.Context, repo *instruments.Repository, record ImportRecord, tradeDate time.Time) (*instruments.Instrument, bool, error) {
	candidates := identifierCandidates(record)
	if len(candidates) == 0 {
		return nil, false, domain.NewValidationError("record has no symbol, ISIN or scheme code")
	}

	// Identifiers valid on the trade date win over ones whose window excludes it
	for _, asOf := range []*time.Time{&tradeDate, nil} {
		for _, c := range candidates {
			inst, err := repo.Resolve(ctx, c.idType, c.value, asOf)
			if err != nil {
				return nil, false, err
			}
			if inst != nil {
				return inst, false, nil
			}
		}
	}

	if !s.options.AutoCreate {
		return nil, false, domain.NewValidationError("unresolvable identifier %s %q", candidates[0].idType, candidates[0].value)
	}

	inst, err := s.createInstrument(ctx, repo, record)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// createInstrument registers an instrument carrying every identifier the record has.
// A record with only a symbol and no exchange gets a TICKER.
func (s *Service) createInstrument(ctx context.Context, repo *instruments.Repository, record ImportRecord) (*instruments.Instrument, error) {
	instType := instruments.InstrumentTypeEquity
	if record.SchemeCode != "" {
		instType = instruments.InstrumentTypeMutualFund
	}

	name := strings.TrimSpace(record.Name)
	if name == "" {
		name = firstNonEmpty(record.Symbol, record.ISIN, record.SchemeCode)
	}

	inst := &instruments.Instrument{Type: instType, Name: strings.TrimSpace(name)}
	if err := repo.Create(ctx, inst); err != nil {
		return nil, err
	}

	var idents []identifierCandidate
	for _, c := range identifierCandidates(record) {
		switch c.idType {
		case instruments.IdentifierISIN, instruments.IdentifierSchemeCode:
			idents = append(idents, c)
		}
	}
	if symbol := instruments.NormalizeValue(record.Symbol); symbol != "" {
		switch strings.ToUpper(strings.TrimSpace(record.Exchange)) {
		case "NSE":
			idents = append(idents, identifierCandidate{instruments.IdentifierNSESymbol, symbol})
		case "BSE":
			idents = append(idents, identifierCandidate{instruments.IdentifierBSECode, symbol})
		default:
			idents = append(idents, identifierCandidate{instruments.IdentifierTicker, symbol})
		}
	}

	for _, c := range idents {
		ident := &instruments.Identifier{InstrumentID: inst.ID, Type: c.idType, Value: c.value}
		if err := repo.AddIdentifier(ctx, ident); err != nil {
			return nil, fmt.Errorf("failed to attach %s to new instrument: %w", c.idType, err)
		}
		inst.Identifiers = append(inst.Identifiers, *ident)
	}

	s.log.Info().
		Int64("instrument_id", inst.ID).
		Str("name", inst.Name).
		Int("identifiers", len(idents)).
		Msg("Instrument created during import")

	return inst, nil
}

// parseRecord validates a raw record into a transaction without instrument or portfolio
func parseRecord(record ImportRecord) (*Transaction, error) {
	if record.malformed != nil {
		return nil, domain.NewValidationError("malformed record: %v", record.malformed)
	}

	tradeType, err := ParseTradeType(record.TradeType)
	if err != nil {
		return nil, err
	}

	tradeDate, err := domain.ParseDate(record.TradeDate)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		Symbol:    instruments.NormalizeValue(firstNonEmpty(record.Symbol, record.ISIN, record.SchemeCode)),
		TradeDate: tradeDate,
		Segment:   strings.TrimSpace(record.Segment),
		Series:    strings.TrimSpace(record.Series),
		TradeType: tradeType,
		Quantity:  record.Quantity,
		Price:     record.Price,
		TradeID:   strings.TrimSpace(record.TradeID),
		OrderID:   strings.TrimSpace(record.OrderID),
	}

	if record.OrderExecutionTime != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record.OrderExecutionTime))
		if err != nil {
			return nil, domain.NewValidationError("invalid order execution time %q, expected RFC3339", record.OrderExecutionTime)
		}
		ts = ts.UTC()
		t.OrderExecutionTime = &ts
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func hashRecords(records []ImportRecord) (string, error) {
	body, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to hash import records: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
