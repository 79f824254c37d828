package domain

import "context"

// HoldingsRecalculator rebuilds the holdings snapshot of one portfolio.
// Defined here to avoid an import cycle between transactions and holdings.
type HoldingsRecalculator interface {
	RecalculatePortfolio(ctx context.Context, portfolioID int64) error
}
