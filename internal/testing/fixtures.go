package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

// Fixtures inserts rows with plain SQL so module packages can use them from their own tests
// without import cycles.
type Fixtures struct {
	t  *testing.T
	db *sql.DB
}

// NewFixtures binds fixture helpers to a database
func NewFixtures(t *testing.T, db *sql.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) insert(query string, args ...interface{}) int64 {
	f.t.Helper()

	res, err := f.db.Exec(query, args...)
	if err != nil {
		f.t.Fatalf("fixture insert failed: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		f.t.Fatalf("fixture insert id failed: %v", err)
	}
	return id
}

// Portfolio inserts a portfolio and returns its id
func (f *Fixtures) Portfolio(userID, name string) int64 {
	f.t.Helper()
	return f.insert(`INSERT INTO portfolios (user_id, name, created_at) VALUES (?, ?, ?)`,
		userID, name, time.Now().Unix())
}

// Instrument inserts an instrument and returns its id
func (f *Fixtures) Instrument(instrumentType, name string) int64 {
	f.t.Helper()
	return f.insert(`INSERT INTO instruments (type, name, created_at) VALUES (?, ?, ?)`,
		instrumentType, name, time.Now().Unix())
}

// Identifier attaches an identifier to an instrument
func (f *Fixtures) Identifier(instrumentID int64, idType, value string) int64 {
	f.t.Helper()
	return f.insert(`INSERT INTO instrument_identifiers (instrument_id, type, value) VALUES (?, ?, ?)`,
		instrumentID, idType, value)
}

// Trade inserts a transaction with a dedup key derived from its natural key
func (f *Fixtures) Trade(portfolioID, instrumentID int64, date, tradeType, qty, price string) int64 {
	f.t.Helper()

	tradeDate, err := domain.ParseDate(date)
	if err != nil {
		f.t.Fatalf("fixture date: %v", err)
	}
	key := domain.TransactionNaturalKey{
		InstrumentID: instrumentID,
		TradeDate:    tradeDate,
		TradeType:    tradeType,
		Quantity:     decimal.RequireFromString(qty),
		Price:        decimal.RequireFromString(price),
	}

	return f.insert(`INSERT INTO transactions
		(portfolio_id, instrument_id, symbol, trade_date, trade_type, quantity, price, dedup_key, created_at)
		VALUES (?, ?, '', ?, ?, ?, ?, ?, ?)`,
		portfolioID, instrumentID, date, tradeType, qty, price, key.DedupKey(), time.Now().Unix())
}

// Holding inserts a holding row directly
func (f *Fixtures) Holding(portfolioID, instrumentID int64, qty, avgPrice string) {
	f.t.Helper()
	f.insert(`INSERT INTO holdings (portfolio_id, instrument_id, quantity, avg_price, updated_at) VALUES (?, ?, ?, ?, ?)`,
		portfolioID, instrumentID, qty, avgPrice, time.Now().Unix())
}

// CorporateAction inserts a corporate action and returns its id
func (f *Fixtures) CorporateAction(actionType, exDate string, parentID int64, childID *int64, num, den string) int64 {
	f.t.Helper()
	now := time.Now().Unix()
	return f.insert(`INSERT INTO corporate_actions
		(type, ex_date, parent_instrument_id, child_instrument_id, ratio_numerator, ratio_denominator, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		actionType, exDate, parentID, childID, num, den, now, now)
}

// Count returns SELECT COUNT(*) for a table with an optional where clause
func (f *Fixtures) Count(table, where string, args ...interface{}) int {
	f.t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := f.db.QueryRow(query, args...).Scan(&n); err != nil {
		f.t.Fatalf("fixture count failed: %v", err)
	}
	return n
}
