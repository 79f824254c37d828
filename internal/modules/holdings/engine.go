package holdings

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions"
	"github.com/midtierhuman/PortVault-sub000/internal/modules/transactions"
)

// Engine folds a ledger into holdings. It has no side effects.
type Engine struct {
	adjuster      *corporateactions.Adjuster
	dustThreshold decimal.Decimal
}

// NewEngine creates an engine. Net quantities below dustThreshold are treated as closed.
func NewEngine(adjuster *corporateactions.Adjuster, dustThreshold decimal.Decimal) *Engine {
	if adjuster == nil {
		adjuster = corporateactions.NewAdjuster()
	}
	return &Engine{adjuster: adjuster, dustThreshold: dustThreshold}
}

type position struct {
	net      decimal.Decimal
	buyQty   decimal.Decimal
	buyValue decimal.Decimal
}

// Reconcile computes holdings from the full transaction history of a portfolio.
// Every transaction is restated with the corporate actions of its own instrument taking
// effect after its trade date. The average price is the buy-weighted mean of restated
// prices; sells reduce quantity only.
func (e *Engine) Reconcile(portfolioID int64, txs []transactions.Transaction, actionsByInstrument map[int64][]corporateactions.CorporateAction) Reconciliation {
	positions := make(map[int64]*position)

	for _, t := range txs {
		qty, price := e.adjuster.Adjust(t.Quantity, t.Price, t.TradeDate, actionsByInstrument[t.InstrumentID])

		p, ok := positions[t.InstrumentID]
		if !ok {
			p = &position{}
			positions[t.InstrumentID] = p
		}

		switch t.TradeType {
		case transactions.TradeTypeBuy:
			p.net = p.net.Add(qty)
			p.buyQty = p.buyQty.Add(qty)
			p.buyValue = p.buyValue.Add(qty.Mul(price))
		case transactions.TradeTypeSell:
			p.net = p.net.Sub(qty)
		}
	}

	instrumentIDs := make([]int64, 0, len(positions))
	for id := range positions {
		instrumentIDs = append(instrumentIDs, id)
	}
	sort.Slice(instrumentIDs, func(i, j int) bool { return instrumentIDs[i] < instrumentIDs[j] })

	result := Reconciliation{
		PortfolioID:  portfolioID,
		Holdings:     []Holding{},
		Dust:         []Anomaly{},
		Oversold:     []Anomaly{},
		Transactions: len(txs),
	}

	for _, id := range instrumentIDs {
		p := positions[id]

		switch {
		case p.net.IsNegative():
			result.Oversold = append(result.Oversold, Anomaly{InstrumentID: id, Quantity: p.net})
			continue
		case p.net.LessThan(e.dustThreshold):
			result.Dust = append(result.Dust, Anomaly{InstrumentID: id, Quantity: p.net})
			continue
		}

		avg := decimal.Zero
		if p.buyQty.IsPositive() {
			avg = p.buyValue.Div(p.buyQty)
		}

		h := Holding{PortfolioID: portfolioID, InstrumentID: id, Quantity: p.net, AvgPrice: avg}
		result.Holdings = append(result.Holdings, h)
		result.Invested = result.Invested.Add(h.Invested())
	}

	return result
}
