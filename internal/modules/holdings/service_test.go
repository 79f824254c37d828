package holdings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/events"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/instruments"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
	testingpkg "github.com/midtierhuman/PortVault-sub000/internal/testing"
)

type serviceFixture struct {
	service  *Service
	repo     *Repository
	fixtures *testingpkg.Fixtures
	bus      *events.Bus
	manager  *events.Manager

	mu       sync.Mutex
	received []*events.HoldingsRecalculatedData
}

func newServiceFixture(t *testing.T, options Options) *serviceFixture {
	db, cleanup := testingpkg.NewTestDB(t)
	t.Cleanup(cleanup)

	conn := db.Conn()
	log := zerolog.Nop()
	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)

	if options.DustThreshold.IsZero() {
		options.DustThreshold = decimal.RequireFromString("0.1")
	}

	repo := NewRepository(conn, log)
	portfolioService := portfolios.NewService(
		portfolios.NewRepository(conn, log), portfolios.NewUploadRepository(conn, log), conn, manager, log)

	f := &serviceFixture{
		repo:     repo,
		fixtures: testingpkg.NewFixtures(t, conn),
		bus:      bus,
		manager:  manager,
	}
	f.service = NewService(
		repo,
		transactions.NewRepository(conn, log),
		corporateactions.NewRepository(conn, log),
		instruments.NewService(instruments.NewRepository(conn, log), conn, manager, log),
		portfolioService,
		NewEngine(corporateactions.NewAdjuster(), options.DustThreshold),
		conn,
		manager,
		options,
		log,
	)

	bus.Subscribe(events.HoldingsRecalculated, func(e *events.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.received = append(f.received, e.Data.(*events.HoldingsRecalculatedData))
	})
	return f
}

func (f *serviceFixture) invested(t *testing.T, portfolioID int64) decimal.Decimal {
	t.Helper()
	var invested decimal.Decimal
	err := f.service.db.QueryRow(`SELECT invested FROM portfolios WHERE id = ?`, portfolioID).Scan(&invested)
	require.NoError(t, err)
	return invested
}

func TestService_RecalculateHoldings(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	infy := f.fixtures.Instrument("EQUITY", "Infosys")
	tcs := f.fixtures.Instrument("EQUITY", "TCS")
	f.fixtures.Trade(p, infy, "2024-01-02", "BUY", "10", "100")
	f.fixtures.Trade(p, infy, "2024-02-02", "BUY", "10", "200")
	f.fixtures.Trade(p, tcs, "2024-01-05", "BUY", "3", "3000")
	f.fixtures.Trade(p, tcs, "2024-03-05", "SELL", "3", "3500")

	result, err := f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Holdings)
	assert.Equal(t, 4, result.Transactions)
	require.Len(t, result.Dust, 1)
	assert.Equal(t, tcs, result.Dust[0].InstrumentID)
	assert.Equal(t, "3000", result.Invested)

	stored, err := f.repo.ListByPortfolio(ctx, p)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, infy, stored[0].InstrumentID)
	assert.True(t, stored[0].Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, stored[0].AvgPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, f.invested(t, p).Equal(decimal.NewFromInt(3000)))

	require.Len(t, f.received, 1)
	assert.Equal(t, p, f.received[0].PortfolioID)
	assert.Equal(t, 1, f.received[0].Dust)
}

func TestService_RecalculateIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	a := f.fixtures.Instrument("EQUITY", "A")
	b := f.fixtures.Instrument("EQUITY", "B")
	f.fixtures.Trade(p, a, "2023-01-02", "BUY", "7", "33.5")
	f.fixtures.Trade(p, a, "2023-05-02", "SELL", "2", "40")
	f.fixtures.Trade(p, b, "2023-02-02", "BUY", "1.5", "1200")
	f.fixtures.CorporateAction("SPLIT", "2023-03-01", a, nil, "5", "1")

	_, err := f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)
	first, err := f.repo.ListByPortfolio(ctx, p)
	require.NoError(t, err)

	_, err = f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)
	second, err := f.repo.ListByPortfolio(ctx, p)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].InstrumentID, second[i].InstrumentID)
		assert.True(t, first[i].Quantity.Equal(second[i].Quantity))
		assert.True(t, first[i].AvgPrice.Equal(second[i].AvgPrice))
	}

	// 7 restated by 5:1 is 35, the sell after the split is not restated
	assert.True(t, first[0].Quantity.Equal(decimal.NewFromInt(33)))
	assert.True(t, first[0].AvgPrice.Equal(decimal.RequireFromString("6.7")))
}

func TestService_RecalculateReplacesStaleSnapshot(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	other := f.fixtures.Portfolio("u1", "Other")
	a := f.fixtures.Instrument("EQUITY", "A")
	stale := f.fixtures.Instrument("EQUITY", "Stale")

	f.fixtures.Holding(p, stale, "99", "1")
	f.fixtures.Holding(other, stale, "5", "1")
	f.fixtures.Trade(p, a, "2024-01-02", "BUY", "1", "10")

	_, err := f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, 0, f.fixtures.Count("holdings", "portfolio_id = ? AND instrument_id = ?", p, stale))
	assert.Equal(t, 1, f.fixtures.Count("holdings", "portfolio_id = ?", p))
	assert.Equal(t, 1, f.fixtures.Count("holdings", "portfolio_id = ?", other))
}

func TestService_EmptyLedgerClearsSnapshot(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	a := f.fixtures.Instrument("EQUITY", "A")
	f.fixtures.Holding(p, a, "10", "10")

	result, err := f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Holdings)
	assert.Equal(t, "0", result.Invested)
	assert.Equal(t, 0, f.fixtures.Count("holdings", "portfolio_id = ?", p))
}

func TestService_CancelledContextKeepsPreviousSnapshot(t *testing.T) {
	f := newServiceFixture(t, Options{})

	p := f.fixtures.Portfolio("u1", "Main")
	a := f.fixtures.Instrument("EQUITY", "A")
	f.fixtures.Holding(p, a, "10", "10")
	f.fixtures.Trade(p, a, "2024-01-02", "BUY", "1", "10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.RecalculateHoldings(ctx, p)
	require.Error(t, err)

	stored, err := f.repo.ListByPortfolio(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Empty(t, f.received)
}

func TestService_UnknownPortfolio(t *testing.T) {
	f := newServiceFixture(t, Options{})

	_, err := f.service.RecalculateHoldings(context.Background(), 4242)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_ConcurrentRecalculationsOfOnePortfolio(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	for i, name := range []string{"A", "B", "C"} {
		id := f.fixtures.Instrument("EQUITY", name)
		f.fixtures.Trade(p, id, "2024-01-0"+string(rune('1'+i)), "BUY", "1", "10")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.RecalculateHoldings(ctx, p)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.fixtures.Count("holdings", "portfolio_id = ?", p))
	assert.Equal(t, 0, f.service.locks.size())
}

func TestService_RecalculateAll(t *testing.T) {
	f := newServiceFixture(t, Options{Parallelism: 2})
	ctx := context.Background()

	a := f.fixtures.Instrument("EQUITY", "A")
	var ids []int64
	for _, name := range []string{"P1", "P2", "P3"} {
		p := f.fixtures.Portfolio("u1", name)
		f.fixtures.Trade(p, a, "2024-01-02", "BUY", "2", "10")
		ids = append(ids, p)
	}

	require.NoError(t, f.service.RecalculateAll(ctx))

	for _, p := range ids {
		assert.Equal(t, 1, f.fixtures.Count("holdings", "portfolio_id = ?", p))
		assert.True(t, f.invested(t, p).Equal(decimal.NewFromInt(20)))
	}
	assert.Len(t, f.received, 3)
}

func TestService_GetHoldingsLabelsAndCache(t *testing.T) {
	f := newServiceFixture(t, Options{CacheTTL: time.Hour})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	infy := f.fixtures.Instrument("EQUITY", "Infosys Ltd")
	fund := f.fixtures.Instrument("MUTUAL_FUND", "Index Fund Growth")
	f.fixtures.Identifier(infy, "NSE_SYMBOL", "INFY")
	f.fixtures.Identifier(infy, "ISIN", "INE009A01021")
	f.fixtures.Trade(p, infy, "2024-01-02", "BUY", "10", "1500")
	f.fixtures.Trade(p, fund, "2024-01-02", "BUY", "12.5", "80")

	_, err := f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)

	views, err := f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "INFY", views[0].Symbol)
	assert.Equal(t, "Infosys Ltd", views[0].Name)
	assert.Equal(t, "EQUITY", views[0].Type)
	assert.Equal(t, "15000", views[0].Invested)
	assert.Equal(t, "Index Fund Growth", views[1].Symbol)
	assert.Equal(t, "12.5", views[1].Quantity)

	// A direct write is invisible while the cached snapshot is valid
	_, err = f.service.db.Exec(`DELETE FROM holdings WHERE portfolio_id = ?`, p)
	require.NoError(t, err)
	cached, err := f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	f.manager.Emit("portfolios", &events.PortfolioClearedData{PortfolioID: p})
	fresh, err := f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestService_MigrationInvalidatesAffectedPortfolios(t *testing.T) {
	f := newServiceFixture(t, Options{CacheTTL: time.Hour})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	a := f.fixtures.Instrument("EQUITY", "A")
	f.fixtures.Holding(p, a, "1", "1")

	views, err := f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	require.Len(t, views, 1)

	f.fixtures.Holding(p, f.fixtures.Instrument("EQUITY", "B"), "2", "2")
	f.manager.Emit("instruments", &events.InstrumentMigratedData{AffectedPortfolioIDs: []int64{p}})

	views, err = f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestService_InstrumentChangesRefreshCachedLabels(t *testing.T) {
	f := newServiceFixture(t, Options{CacheTTL: time.Hour})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")
	infy := f.fixtures.Instrument("EQUITY", "Old Name")
	f.fixtures.Trade(p, infy, "2024-01-02", "BUY", "10", "100")

	_, err := f.service.RecalculateHoldings(ctx, p)
	require.NoError(t, err)

	views, err := f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Old Name", views[0].Symbol)

	_, err = f.service.instruments.Update(ctx, infy, instruments.InstrumentTypeEquity, "New Name")
	require.NoError(t, err)

	views, err = f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "New Name", views[0].Name)
	assert.Equal(t, "New Name", views[0].Symbol)

	_, err = f.service.instruments.AddIdentifier(ctx, infy, instruments.IdentifierTicker, "newt", nil, nil)
	require.NoError(t, err)

	views, err = f.service.GetHoldings(ctx, p)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "NEWT", views[0].Symbol)
}

func TestViewCache_DiscardsViewsBuiltBeforeInvalidation(t *testing.T) {
	c := newViewCache(time.Hour)
	stale := []HoldingView{{InstrumentID: 1, Quantity: "10"}}

	gen := c.generation(1)
	c.invalidate(1)
	assert.False(t, c.put(1, gen, stale))
	_, ok := c.get(1)
	assert.False(t, ok)

	gen = c.generation(1)
	c.invalidateAll()
	assert.False(t, c.put(1, gen, stale))

	// Other portfolios keep their generation
	other := c.generation(2)
	c.invalidate(1)
	assert.True(t, c.put(2, other, stale))
	got, ok := c.get(2)
	require.True(t, ok)
	assert.Equal(t, stale, got)

	c.invalidateAll()
	_, ok = c.get(2)
	assert.False(t, ok)
}

func TestPortfolioLocks_Serialise(t *testing.T) {
	locks := newPortfolioLocks()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, 1)
	require.NoError(t, err)
	acquired := make(chan struct{})
	go func() {
		release, err := locks.Lock(ctx, 1)
		if err != nil {
			return
		}
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	// Other portfolios are not blocked
	release, err := locks.Lock(ctx, 2)
	require.NoError(t, err)
	release()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}

	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPortfolioLocks_WaiterHonoursContext(t *testing.T) {
	locks := newPortfolioLocks()

	unlock, err := locks.Lock(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	release, err := locks.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, release)
	assert.Less(t, time.Since(start), time.Second)

	unlock()
	assert.Equal(t, 0, locks.size())
}

func TestService_RecalculateHoldingsGivesUpWhileLocked(t *testing.T) {
	f := newServiceFixture(t, Options{Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	p := f.fixtures.Portfolio("u1", "Main")

	unlock, err := f.service.locks.Lock(ctx, p)
	require.NoError(t, err)
	defer unlock()

	_, err = f.service.RecalculateHoldings(ctx, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
