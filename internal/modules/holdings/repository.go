package holdings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

const holdingColumns = `portfolio_id, instrument_id, quantity, avg_price, updated_at`

// Repository persists the derived holdings snapshot
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: r.db, q: tx, log: r.log}
}

// Replace swaps the snapshot of a portfolio for holdings and stores the invested total.
// Must run inside a transaction so readers see the old or the new snapshot, never a mix.
func (r *Repository) Replace(ctx context.Context, portfolioID int64, holdings []Holding, invested decimal.Decimal) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM holdings WHERE portfolio_id = ?`, portfolioID); err != nil {
		return fmt.Errorf("failed to clear holdings of portfolio %d: %w", portfolioID, err)
	}

	now := time.Now().UTC()
	for i := range holdings {
		h := &holdings[i]
		h.UpdatedAt = now

		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO holdings (`+holdingColumns+`) VALUES (?, ?, ?, ?, ?)`,
			portfolioID, h.InstrumentID, h.Quantity.String(), h.AvgPrice.String(), now.Unix()); err != nil {
			return fmt.Errorf("failed to insert holding for instrument %d: %w", h.InstrumentID, err)
		}
	}

	if _, err := r.q.ExecContext(ctx,
		`UPDATE portfolios SET invested = ? WHERE id = ?`, invested.String(), portfolioID); err != nil {
		return fmt.Errorf("failed to update invested total of portfolio %d: %w", portfolioID, err)
	}

	return nil
}

// ListByPortfolio returns the current snapshot ordered by instrument id
func (r *Repository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]Holding, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE portfolio_id = ? ORDER BY instrument_id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	result := []Holding{}
	for rows.Next() {
		var (
			h         Holding
			updatedAt int64
		)
		if err := rows.Scan(&h.PortfolioID, &h.InstrumentID, &h.Quantity, &h.AvgPrice, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return result, nil
}

// instrumentLabel is the part of an instrument a holding view needs
type instrumentLabel struct {
	Name string
	Type string
}

// InstrumentLabels returns name and type of the instruments held by a portfolio
func (r *Repository) InstrumentLabels(ctx context.Context, portfolioID int64) (map[int64]instrumentLabel, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT i.id, i.name, i.type
		FROM holdings h JOIN instruments i ON i.id = h.instrument_id
		WHERE h.portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument labels: %w", err)
	}
	defer rows.Close()

	labels := make(map[int64]instrumentLabel)
	for rows.Next() {
		var (
			id    int64
			label instrumentLabel
		)
		if err := rows.Scan(&id, &label.Name, &label.Type); err != nil {
			return nil, fmt.Errorf("failed to scan instrument label: %w", err)
		}
		labels[id] = label
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument labels: %w", err)
	}
	return labels, nil
}
