// Package holdings derives per-instrument positions from the transaction ledger and the
// corporate action registry.
package holdings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is the derived position of one instrument in one portfolio
type Holding struct {
	PortfolioID  int64           `json:"portfolio_id"`
	InstrumentID int64           `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"qty"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Invested returns quantity × average price
func (h Holding) Invested() decimal.Decimal {
	return h.Quantity.Mul(h.AvgPrice)
}

// Anomaly is a position dropped from the snapshot
type Anomaly struct {
	InstrumentID int64           `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"qty"`
}

// Reconciliation is the output of one engine run
type Reconciliation struct {
	PortfolioID  int64
	Holdings     []Holding
	Dust         []Anomaly // 0 <= net < threshold
	Oversold     []Anomaly // net < 0
	Invested     decimal.Decimal
	Transactions int
}

// RecalculationResult reports a committed recalculation
type RecalculationResult struct {
	PortfolioID  int64     `json:"portfolio_id"`
	Holdings     int       `json:"holdings"`
	Transactions int       `json:"transactions"`
	Dust         []Anomaly `json:"dust"`
	Oversold     []Anomaly `json:"oversold"`
	Invested     string    `json:"invested"`
	Duration     string    `json:"duration"`
}

// HoldingView is a holding joined with its instrument for display
type HoldingView struct {
	InstrumentID int64  `json:"instrument_id" msgpack:"instrument_id"`
	Symbol       string `json:"symbol" msgpack:"symbol"`
	Name         string `json:"name" msgpack:"name"`
	Type         string `json:"type" msgpack:"type"`
	Quantity     string `json:"qty" msgpack:"qty"`
	AvgPrice     string `json:"avg_price" msgpack:"avg_price"`
	Invested     string `json:"invested" msgpack:"invested"`
}
