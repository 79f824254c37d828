package portfolios

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

const portfolioColumns = `id, user_id, name, invested, current, created_at`

// Repository handles portfolio persistence
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "portfolios").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: r.db, q: tx, log: r.log}
}

// Create inserts a portfolio and sets its ID. Returns errDuplicateName when the user already
// has a portfolio with that name.
func (r *Repository) Create(ctx context.Context, p *Portfolio) error {
	p.CreatedAt = time.Now().UTC()

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO portfolios (user_id, name, invested, current, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Invested.String(), p.Current.String(), p.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return errDuplicateName
		}
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get portfolio id: %w", err)
	}
	p.ID = id

	return nil
}

// GetByID returns the portfolio or nil when it does not exist
func (r *Repository) GetByID(ctx context.Context, id int64) (*Portfolio, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)

	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}
	return p, nil
}

// ListByUser returns a user's portfolios ordered by name
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Portfolio, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	result := []Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return result, nil
}

// ListIDs returns every portfolio id in ascending order
func (r *Repository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio ids: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio ids: %w", err)
	}
	return ids, nil
}

// Rename changes the name of a portfolio
func (r *Repository) Rename(ctx context.Context, id int64, name string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE portfolios SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return errDuplicateName
		}
		return fmt.Errorf("failed to rename portfolio %d: %w", id, err)
	}
	return nil
}

// ClearLedger removes transactions and holdings of a portfolio and resets its totals
func (r *Repository) ClearLedger(ctx context.Context, id int64) (*ClearResult, error) {
	result := &ClearResult{PortfolioID: id}

	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE portfolio_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete transactions of portfolio %d: %w", id, err)
	}
	result.TransactionsRemoved, _ = res.RowsAffected()

	res, err = r.q.ExecContext(ctx, `DELETE FROM holdings WHERE portfolio_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete holdings of portfolio %d: %w", id, err)
	}
	result.HoldingsRemoved, _ = res.RowsAffected()

	if _, err := r.q.ExecContext(ctx, `UPDATE portfolios SET invested = '0', current = '0' WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to reset portfolio %d totals: %w", id, err)
	}

	return result, nil
}

// Delete removes the portfolio row. Dependent rows must be removed first.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM portfolios WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var (
		p         Portfolio
		createdAt int64
	)

	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Invested, &p.Current, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &p, nil
}

var errDuplicateName = errors.New("duplicate portfolio name")

// isUniqueViolation matches the constraint message of both SQLite drivers
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
