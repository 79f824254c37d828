package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

const transactionColumns = `id, portfolio_id, instrument_id, symbol, trade_date, order_execution_time, segment, series,
	trade_type, quantity, price, trade_id, order_id, dedup_key, import_batch_id, created_at`

// Repository handles ledger persistence. Rows are only inserted, explicitly corrected or deleted.
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new transaction repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: r.db, q: tx, log: r.log}
}

// Insert stores t unless a transaction with the same dedup key already exists in the
// portfolio. Returns false for a duplicate.
func (r *Repository) Insert(ctx context.Context, t *Transaction) (bool, error) {
	t.DedupKey = t.NaturalKey().DedupKey()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions
			(portfolio_id, instrument_id, symbol, trade_date, order_execution_time, segment, series,
			 trade_type, quantity, price, trade_id, order_id, dedup_key, import_batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, dedup_key) DO NOTHING`,
		t.PortfolioID,
		t.InstrumentID,
		t.Symbol,
		domain.FormatDate(t.TradeDate),
		formatOptionalTime(t.OrderExecutionTime),
		t.Segment,
		t.Series,
		string(t.TradeType),
		t.Quantity.String(),
		t.Price.String(),
		nullString(t.TradeID),
		nullString(t.OrderID),
		t.DedupKey,
		nullString(t.ImportBatchID),
		t.CreatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get transaction id: %w", err)
	}
	t.ID = id

	return true, nil
}

// Get returns a transaction or nil when it does not exist
func (r *Repository) Get(ctx context.Context, id int64) (*Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return t, nil
}

// ListByPortfolio returns the full history of a portfolio ordered by trade date, then id
func (r *Repository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]Transaction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE portfolio_id = ? ORDER BY trade_date, id`,
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	result := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return result, nil
}

// Delete removes a single transaction. Returns false when it does not exist.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByPortfolio removes every transaction of a portfolio
func (r *Repository) DeleteByPortfolio(ctx context.Context, portfolioID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions of portfolio %d: %w", portfolioID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Correct rewrites the trade fields of an existing transaction and recomputes its dedup key.
// Fails with a conflict when the corrected trade duplicates another one in the portfolio.
func (r *Repository) Correct(ctx context.Context, id int64, t *Transaction) (bool, error) {
	t.ID = id
	t.DedupKey = t.NaturalKey().DedupKey()

	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions SET
			instrument_id = ?, symbol = ?, trade_date = ?, order_execution_time = ?, segment = ?, series = ?,
			trade_type = ?, quantity = ?, price = ?, trade_id = ?, order_id = ?, dedup_key = ?
		WHERE id = ?`,
		t.InstrumentID,
		t.Symbol,
		domain.FormatDate(t.TradeDate),
		formatOptionalTime(t.OrderExecutionTime),
		t.Segment,
		t.Series,
		string(t.TradeType),
		t.Quantity.String(),
		t.Price.String(),
		nullString(t.TradeID),
		nullString(t.OrderID),
		t.DedupKey,
		id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.NewConflictError("corrected transaction %d duplicates an existing trade", id)
		}
		return false, fmt.Errorf("failed to correct transaction %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		t             Transaction
		tradeDate     string
		executionTime sql.NullString
		tradeType     string
		tradeID       sql.NullString
		orderID       sql.NullString
		batchID       sql.NullString
		createdAt     int64
	)

	if err := row.Scan(&t.ID, &t.PortfolioID, &t.InstrumentID, &t.Symbol, &tradeDate, &executionTime,
		&t.Segment, &t.Series, &tradeType, &t.Quantity, &t.Price, &tradeID, &orderID, &t.DedupKey,
		&batchID, &createdAt); err != nil {
		return nil, err
	}

	date, err := domain.ParseDate(tradeDate)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	t.TradeDate = date

	if executionTime.Valid && executionTime.String != "" {
		if ts, err := time.Parse(time.RFC3339, executionTime.String); err == nil {
			t.OrderExecutionTime = &ts
		}
	}

	t.TradeType = TradeType(tradeType)
	t.TradeID = tradeID.String
	t.OrderID = orderID.String
	t.ImportBatchID = batchID.String
	t.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func formatOptionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// isUniqueViolation matches the constraint message of both SQLite drivers
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
