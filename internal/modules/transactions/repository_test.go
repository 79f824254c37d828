package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
	testingpkg "github.com/midtierhuman/PortVault-sub000/internal/testing"
)

func newTrade(portfolioID, instrumentID int64, date string, tradeType TradeType, qty, price string) *Transaction {
	d, _ := domain.ParseDate(date)
	return &Transaction{
		PortfolioID:  portfolioID,
		InstrumentID: instrumentID,
		Symbol:       "INFY",
		TradeDate:    d,
		TradeType:    tradeType,
		Quantity:     decimal.RequireFromString(qty),
		Price:        decimal.RequireFromString(price),
	}
}

func TestRepository_InsertDeduplicates(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	fx := testingpkg.NewFixtures(t, db)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()

	p := fx.Portfolio("alice", "Main")
	other := fx.Portfolio("alice", "Other")
	inst := fx.Instrument("EQUITY", "Infosys")

	first := newTrade(p, inst, "2024-01-02", TradeTypeBuy, "10", "100")
	inserted, err := repo.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Positive(t, first.ID)
	assert.Len(t, first.DedupKey, 64)

	// Same trade written with trailing zeros
	inserted, err = repo.Insert(ctx, newTrade(p, inst, "2024-01-02", TradeTypeBuy, "10.00", "100.0"))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same content in another portfolio is a different ledger entry
	inserted, err = repo.Insert(ctx, newTrade(other, inst, "2024-01-02", TradeTypeBuy, "10", "100"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// A distinct external trade id makes an otherwise identical fill a separate trade
	withID := newTrade(p, inst, "2024-01-02", TradeTypeBuy, "10", "100")
	withID.TradeID = "T-2"
	inserted, err = repo.Insert(ctx, withID)
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Equal(t, 2, fx.Count("transactions", "portfolio_id = ?", p))
}

func TestRepository_ListOrderAndRoundTrip(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	fx := testingpkg.NewFixtures(t, db)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()

	p := fx.Portfolio("alice", "Main")
	inst := fx.Instrument("EQUITY", "Infosys")

	late := newTrade(p, inst, "2024-03-01", TradeTypeSell, "4", "120.5")
	exec := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	late.OrderExecutionTime = &exec
	late.OrderID = "O-1"
	late.Segment = "EQ"
	early := newTrade(p, inst, "2024-01-02", TradeTypeBuy, "10", "100")

	_, err := repo.Insert(ctx, late)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, early)
	require.NoError(t, err)

	list, err := repo.ListByPortfolio(ctx, p)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)

	got := list[1]
	assert.Equal(t, TradeTypeSell, got.TradeType)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("120.5")))
	require.NotNil(t, got.OrderExecutionTime)
	assert.True(t, got.OrderExecutionTime.Equal(exec))
	assert.Equal(t, "O-1", got.OrderID)
	assert.Equal(t, "EQ", got.Segment)
	assert.Equal(t, "", got.TradeID)
}

func TestRepository_CorrectAndDelete(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	fx := testingpkg.NewFixtures(t, db)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()

	p := fx.Portfolio("alice", "Main")
	inst := fx.Instrument("EQUITY", "Infosys")

	a := newTrade(p, inst, "2024-01-02", TradeTypeBuy, "10", "100")
	b := newTrade(p, inst, "2024-01-03", TradeTypeBuy, "5", "110")
	_, err := repo.Insert(ctx, a)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, b)
	require.NoError(t, err)

	fixed := newTrade(p, inst, "2024-01-03", TradeTypeBuy, "6", "110")
	found, err := repo.Correct(ctx, b.ID, fixed)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEqual(t, b.DedupKey, fixed.DedupKey)

	got, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(6)))

	// Correcting b into a copy of a collides with a
	_, err = repo.Correct(ctx, b.ID, newTrade(p, inst, "2024-01-02", TradeTypeBuy, "10", "100"))
	assert.True(t, domain.IsConflict(err))

	found, err = repo.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, found)
	found, err = repo.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, found)

	missing, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := repo.DeleteByPortfolio(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestParseTradeType(t *testing.T) {
	tests := []struct {
		in      string
		want    TradeType
		wantErr bool
	}{
		{"BUY", TradeTypeBuy, false},
		{" buy ", TradeTypeBuy, false},
		{"B", TradeTypeBuy, false},
		{"sell", TradeTypeSell, false},
		{"S", TradeTypeSell, false},
		{"HOLD", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTradeType(tt.in)
		if tt.wantErr {
			assert.True(t, domain.IsValidation(err), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
