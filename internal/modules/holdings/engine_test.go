package holdings

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
)

func tx(instrumentID int64, date string, tradeType transactions.TradeType, qty, price string) transactions.Transaction {
	d, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return transactions.Transaction{
		InstrumentID: instrumentID,
		TradeDate:    d,
		TradeType:    tradeType,
		Quantity:     decimal.RequireFromString(qty),
		Price:        decimal.RequireFromString(price),
	}
}

func action(id int64, actionType corporateactions.ActionType, exDate string, num, den int64) corporateactions.CorporateAction {
	d, err := domain.ParseDate(exDate)
	if err != nil {
		panic(err)
	}
	return corporateactions.CorporateAction{
		ID:               id,
		Type:             actionType,
		ExDate:           d,
		RatioNumerator:   decimal.NewFromInt(num),
		RatioDenominator: decimal.NewFromInt(den),
	}
}

func newTestEngine() *Engine {
	return NewEngine(corporateactions.NewAdjuster(), decimal.RequireFromString("0.1"))
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestReconcile_WeightedAverageOfBuys(t *testing.T) {
	rec := newTestEngine().Reconcile(1, []transactions.Transaction{
		tx(7, "2024-01-02", transactions.TradeTypeBuy, "10", "100"),
		tx(7, "2024-02-02", transactions.TradeTypeBuy, "10", "200"),
	}, nil)

	require.Len(t, rec.Holdings, 1)
	requireDecimal(t, "20", rec.Holdings[0].Quantity)
	requireDecimal(t, "150", rec.Holdings[0].AvgPrice)
	requireDecimal(t, "3000", rec.Invested)
	assert.Equal(t, 2, rec.Transactions)
}

func TestReconcile_SellKeepsAverage(t *testing.T) {
	rec := newTestEngine().Reconcile(1, []transactions.Transaction{
		tx(7, "2024-01-02", transactions.TradeTypeBuy, "10", "100"),
		tx(7, "2024-02-02", transactions.TradeTypeSell, "4", "180"),
	}, nil)

	require.Len(t, rec.Holdings, 1)
	requireDecimal(t, "6", rec.Holdings[0].Quantity)
	requireDecimal(t, "100", rec.Holdings[0].AvgPrice)
}

func TestReconcile_OrderOfLedgerDoesNotMatter(t *testing.T) {
	forward := []transactions.Transaction{
		tx(7, "2024-01-02", transactions.TradeTypeBuy, "10", "100"),
		tx(7, "2024-03-02", transactions.TradeTypeSell, "3", "150"),
		tx(7, "2024-05-02", transactions.TradeTypeBuy, "5", "130"),
	}
	backward := []transactions.Transaction{forward[2], forward[1], forward[0]}

	e := newTestEngine()
	a := e.Reconcile(1, forward, nil)
	b := e.Reconcile(1, backward, nil)
	require.Len(t, a.Holdings, 1)
	require.Len(t, b.Holdings, 1)
	requireDecimal(t, "12", a.Holdings[0].Quantity)
	requireDecimal(t, a.Holdings[0].Quantity.String(), b.Holdings[0].Quantity)
	requireDecimal(t, a.Holdings[0].AvgPrice.String(), b.Holdings[0].AvgPrice)
}

func TestReconcile_DustAndOversold(t *testing.T) {
	rec := newTestEngine().Reconcile(1, []transactions.Transaction{
		tx(1, "2024-01-02", transactions.TradeTypeBuy, "10", "100"),
		tx(1, "2024-02-02", transactions.TradeTypeSell, "9.95", "110"),
		tx(2, "2024-01-02", transactions.TradeTypeBuy, "5", "10"),
		tx(2, "2024-02-02", transactions.TradeTypeSell, "5", "12"),
		tx(3, "2024-01-02", transactions.TradeTypeSell, "2", "50"),
		tx(4, "2024-01-02", transactions.TradeTypeBuy, "0.1", "500"),
	}, nil)

	require.Len(t, rec.Holdings, 1)
	assert.Equal(t, int64(4), rec.Holdings[0].InstrumentID)
	requireDecimal(t, "0.1", rec.Holdings[0].Quantity)

	require.Len(t, rec.Dust, 2)
	assert.Equal(t, int64(1), rec.Dust[0].InstrumentID)
	requireDecimal(t, "0.05", rec.Dust[0].Quantity)
	assert.Equal(t, int64(2), rec.Dust[1].InstrumentID)

	require.Len(t, rec.Oversold, 1)
	assert.Equal(t, int64(3), rec.Oversold[0].InstrumentID)
	requireDecimal(t, "-2", rec.Oversold[0].Quantity)
}

func TestReconcile_ZeroBoughtQuantityHasZeroAverage(t *testing.T) {
	e := NewEngine(nil, decimal.Zero)
	rec := e.Reconcile(1, []transactions.Transaction{
		tx(1, "2024-01-02", transactions.TradeTypeBuy, "0", "100"),
	}, nil)

	require.Len(t, rec.Holdings, 1)
	requireDecimal(t, "0", rec.Holdings[0].AvgPrice)
}

func TestReconcile_AppliesActionsOfOwnInstrumentOnly(t *testing.T) {
	actions := map[int64][]corporateactions.CorporateAction{
		1: {action(1, corporateactions.ActionSplit, "2024-03-01", 2, 1)},
	}

	rec := newTestEngine().Reconcile(1, []transactions.Transaction{
		tx(1, "2024-01-02", transactions.TradeTypeBuy, "10", "100"),
		tx(1, "2024-03-01", transactions.TradeTypeBuy, "10", "50"),
		tx(2, "2024-01-02", transactions.TradeTypeBuy, "10", "100"),
	}, actions)

	require.Len(t, rec.Holdings, 2)

	// 10@100 before the split becomes 20@50; the buy on the ex-date is already post-split
	requireDecimal(t, "30", rec.Holdings[0].Quantity)
	requireDecimal(t, "50", rec.Holdings[0].AvgPrice)

	requireDecimal(t, "10", rec.Holdings[1].Quantity)
	requireDecimal(t, "100", rec.Holdings[1].AvgPrice)
}

func TestReconcile_ChainedActionsAndSells(t *testing.T) {
	actions := map[int64][]corporateactions.CorporateAction{
		1: {
			action(2, corporateactions.ActionBonus, "2024-06-01", 3, 1),
			action(1, corporateactions.ActionSplit, "2024-03-01", 2, 1),
		},
	}

	rec := newTestEngine().Reconcile(1, []transactions.Transaction{
		tx(1, "2024-01-02", transactions.TradeTypeBuy, "10", "600"),
		tx(1, "2024-04-01", transactions.TradeTypeSell, "5", "400"),
	}, actions)

	require.Len(t, rec.Holdings, 1)
	// buy: 10 -> 20 -> 60 at 600 -> 300 -> 100; sell after the split: 5 -> 15
	requireDecimal(t, "45", rec.Holdings[0].Quantity)
	requireDecimal(t, "100", rec.Holdings[0].AvgPrice)
}
