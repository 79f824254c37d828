package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
	testingpkg "github.com/midtierhuman/PortVault-sub000/internal/testing"
)

type mockRecalculator struct {
	mock.Mock
}

func (m *mockRecalculator) RecalculatePortfolio(ctx context.Context, portfolioID int64) error {
	args := m.Called(ctx, portfolioID)
	return args.Error(0)
}

type serviceFixture struct {
	service      *Service
	instruments  *instruments.Repository
	recalculator *mockRecalculator
	fixtures     *testingpkg.Fixtures
	imported     []*events.TransactionsImportedData
	portfolioID  int64
}

func newServiceFixture(t *testing.T, options ImportOptions) *serviceFixture {
	db, cleanup := testingpkg.NewTestDB(t)
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)

	uploads := portfolios.NewUploadRepository(db.Conn(), log)
	portfolioService := portfolios.NewService(portfolios.NewRepository(db.Conn(), log), uploads, db.Conn(), manager, log)
	instrumentRepo := instruments.NewRepository(db.Conn(), log)
	recalculator := &mockRecalculator{}

	f := &serviceFixture{
		service:      NewService(NewRepository(db.Conn(), log), instrumentRepo, portfolioService, uploads, recalculator, db.Conn(), manager, options, log),
		instruments:  instrumentRepo,
		recalculator: recalculator,
		fixtures:     testingpkg.NewFixtures(t, db.Conn()),
	}
	f.portfolioID = f.fixtures.Portfolio("alice", "Main")

	bus.Subscribe(events.TransactionsImported, func(e *events.Event) {
		f.imported = append(f.imported, e.Data.(*events.TransactionsImportedData))
	})
	return f
}

func record(symbol, date, tradeType, qty, price string) ImportRecord {
	return ImportRecord{
		Symbol:    symbol,
		Exchange:  "NSE",
		TradeDate: date,
		TradeType: tradeType,
		Quantity:  decimal.RequireFromString(qty),
		Price:     decimal.RequireFromString(price),
	}
}

func TestImport_DeduplicatesAcrossBatches(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	ctx := context.Background()
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(nil).Once()

	req := ImportRequest{
		PortfolioID: f.portfolioID,
		UserID:      "alice",
		FileName:    "tradebook.csv",
		FileHash:    "hash-1",
		Records: []ImportRecord{
			record("INFY", "2024-01-02", "BUY", "10", "100"),
			record("INFY", "2024-01-05", "SELL", "4", "120"),
		},
	}

	first, err := f.service.ImportTransactions(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Added)
	assert.Equal(t, 0, first.Duplicates)
	assert.Equal(t, 1, first.InstrumentsCreated)
	assert.Empty(t, first.Errors)
	assert.False(t, first.PreviouslyUploaded)
	assert.NotEmpty(t, first.BatchID)

	second, err := f.service.ImportTransactions(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, 0, second.InstrumentsCreated)
	assert.True(t, second.PreviouslyUploaded)

	assert.Equal(t, 2, f.fixtures.Count("transactions", "portfolio_id = ?", f.portfolioID))
	assert.Equal(t, 2, f.fixtures.Count("file_uploads", "portfolio_id = ?", f.portfolioID))
	assert.Equal(t, 1, f.fixtures.Count("instruments", ""))

	// Only the batch that added rows triggers a recalculation
	f.recalculator.AssertExpectations(t)
	require.Len(t, f.imported, 2)
	assert.Equal(t, 2, f.imported[0].Added)
	assert.Equal(t, 2, f.imported[1].Duplicates)
}

func TestImport_DuplicateWithinBatch(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(nil)

	result, err := f.service.ImportTransactions(context.Background(), ImportRequest{
		PortfolioID: f.portfolioID,
		UserID:      "alice",
		Records: []ImportRecord{
			record("INFY", "2024-01-02", "BUY", "10", "100"),
			record("infy", "2024-01-02", "buy", "10.0", "100.00"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Duplicates)
}

func TestImport_RowErrorsDoNotAbortBatch(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(nil)

	badExec := record("INFY", "2024-01-02", "BUY", "1", "100")
	badExec.OrderExecutionTime = "09:15"

	result, err := f.service.ImportTransactions(context.Background(), ImportRequest{
		PortfolioID: f.portfolioID,
		UserID:      "alice",
		Records: []ImportRecord{
			record("INFY", "2024-01-02", "BUY", "10", "100"),
			record("INFY", "02/01/2024", "BUY", "10", "100"),
			record("INFY", "2024-01-02", "HOLD", "10", "100"),
			record("INFY", "2024-01-02", "BUY", "0", "100"),
			record("INFY", "2024-01-02", "BUY", "5", "-1"),
			record("", "2024-01-02", "BUY", "5", "100"),
			badExec,
			record("TCS", "2024-01-03", "BUY", "2", "0"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)

	rows := make([]int, 0, len(result.Errors))
	for _, e := range result.Errors {
		rows = append(rows, e.Row)
		assert.NotEmpty(t, e.Message)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, rows)
}

func TestImport_ResolutionOrderAndAutoCreateOff(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: false})
	ctx := context.Background()
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(nil)

	byISIN := f.fixtures.Instrument("EQUITY", "By ISIN")
	f.fixtures.Identifier(byISIN, "ISIN", "INE009A01021")
	bySymbol := f.fixtures.Instrument("EQUITY", "By Symbol")
	f.fixtures.Identifier(bySymbol, "NSE_SYMBOL", "INFY")
	fund := f.fixtures.Instrument("MUTUAL_FUND", "Index Fund")
	f.fixtures.Identifier(fund, "SCHEME_CODE", "120716")

	withISIN := record("INFY", "2024-01-02", "BUY", "10", "100")
	withISIN.ISIN = "ine009a01021"
	scheme := ImportRecord{SchemeCode: "120716", TradeDate: "2024-01-02", TradeType: "BUY",
		Quantity: decimal.RequireFromString("12.345"), Price: decimal.RequireFromString("81.02")}

	result, err := f.service.ImportTransactions(ctx, ImportRequest{
		PortfolioID: f.portfolioID,
		UserID:      "alice",
		Records: []ImportRecord{
			withISIN,
			record("INFY", "2024-01-03", "BUY", "1", "100"),
			scheme,
			record("UNKNOWN", "2024-01-04", "BUY", "1", "1"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "unresolvable identifier")

	assert.Equal(t, 1, f.fixtures.Count("transactions", "instrument_id = ?", byISIN))
	assert.Equal(t, 1, f.fixtures.Count("transactions", "instrument_id = ?", bySymbol))
	assert.Equal(t, 1, f.fixtures.Count("transactions", "instrument_id = ?", fund))
	assert.Equal(t, 3, f.fixtures.Count("instruments", ""))
}

func TestImport_AutoCreateAttachesIdentifiers(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	ctx := context.Background()
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(nil)

	rec := record("HDFCBANK", "2024-01-02", "BUY", "3", "1500")
	rec.ISIN = "INE040A01034"
	rec.Name = "HDFC Bank"

	result, err := f.service.ImportTransactions(ctx, ImportRequest{PortfolioID: f.portfolioID, UserID: "alice", Records: []ImportRecord{rec}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.InstrumentsCreated)

	inst, err := f.instruments.Resolve(ctx, instruments.IdentifierNSESymbol, "HDFCBANK", nil)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "HDFC Bank", inst.Name)
	assert.Equal(t, instruments.InstrumentTypeEquity, inst.Type)

	byISIN, err := f.instruments.Resolve(ctx, instruments.IdentifierISIN, "INE040A01034", nil)
	require.NoError(t, err)
	require.NotNil(t, byISIN)
	assert.Equal(t, inst.ID, byISIN.ID)
}

func TestImport_RecalculationFailureIsReported(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(errors.New("disk full"))

	result, err := f.service.ImportTransactions(context.Background(), ImportRequest{
		PortfolioID: f.portfolioID,
		UserID:      "alice",
		Records:     []ImportRecord{record("INFY", "2024-01-02", "BUY", "10", "100")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.True(t, result.RecalculationFailed)
	assert.Equal(t, 1, f.fixtures.Count("transactions", ""))
}

func TestImport_Rejections(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	ctx := context.Background()

	_, err := f.service.ImportTransactions(ctx, ImportRequest{PortfolioID: f.portfolioID, UserID: "bob",
		Records: []ImportRecord{record("INFY", "2024-01-02", "BUY", "10", "100")}})
	assert.True(t, domain.IsNotFound(err))

	_, err = f.service.ImportTransactions(ctx, ImportRequest{PortfolioID: f.portfolioID, UserID: "alice"})
	assert.True(t, domain.IsValidation(err))

	f.recalculator.AssertNotCalled(t, "RecalculatePortfolio", mock.Anything, mock.Anything)
}

func TestService_DeleteAndCorrect(t *testing.T) {
	f := newServiceFixture(t, ImportOptions{AutoCreate: true})
	ctx := context.Background()
	f.recalculator.On("RecalculatePortfolio", mock.Anything, f.portfolioID).Return(nil)

	inst := f.fixtures.Instrument("EQUITY", "Infosys")
	txID := f.fixtures.Trade(f.portfolioID, inst, "2024-01-02", "BUY", "10", "100")
	otherPortfolio := f.fixtures.Portfolio("alice", "Other")
	foreign := f.fixtures.Trade(otherPortfolio, inst, "2024-01-02", "BUY", "10", "100")

	corrected, err := f.service.Correct(ctx, "alice", f.portfolioID, txID, Transaction{
		InstrumentID: inst,
		TradeDate:    mustDate(t, "2024-01-02"),
		TradeType:    TradeTypeBuy,
		Quantity:     decimal.NewFromInt(12),
		Price:        decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.True(t, corrected.Quantity.Equal(decimal.NewFromInt(12)))

	_, err = f.service.Correct(ctx, "alice", f.portfolioID, txID, Transaction{
		InstrumentID: 999, TradeDate: mustDate(t, "2024-01-02"), TradeType: TradeTypeBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1),
	})
	assert.True(t, domain.IsNotFound(err))

	assert.True(t, domain.IsNotFound(f.service.Delete(ctx, "alice", f.portfolioID, foreign)))
	require.NoError(t, f.service.Delete(ctx, "alice", f.portfolioID, txID))
	assert.True(t, domain.IsNotFound(f.service.Delete(ctx, "alice", f.portfolioID, txID)))

	list, err := f.service.List(ctx, "alice", f.portfolioID)
	require.NoError(t, err)
	assert.Empty(t, list)

	f.recalculator.AssertNumberOfCalls(t, "RecalculatePortfolio", 2)
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := domain.ParseDate(value)
	require.NoError(t, err)
	return parsed
}

func TestImportRecord_UndecodableRowBecomesRowError(t *testing.T) {
	var req ImportRequest
	require.NoError(t, json.Unmarshal([]byte(`{"records":[
		{"symbol":"INFY","trade_date":"2024-01-02","trade_type":"BUY","quantity":{"n":1},"price":"1"},
		{"symbol":"INFY","trade_date":"2024-01-02","trade_type":"BUY","quantity":"2","price":"1","fees":"3"}
	]}`), &req))
	require.Len(t, req.Records, 2)

	_, err := parseRecord(req.Records[0])
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "malformed record")

	t2, err := parseRecord(req.Records[1])
	require.NoError(t, err)
	assert.True(t, t2.Quantity.Equal(decimal.NewFromInt(2)))
}
