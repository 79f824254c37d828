package instruments

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

// The statements below run inside the migration transaction opened by Service.Migrate.

// moveIdentifiers drops source identifiers the target already has, then repoints the rest
func (r *Repository) moveIdentifiers(ctx context.Context, sourceID, targetID int64) (moved, dropped int, err error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM instrument_identifiers
		WHERE instrument_id = ?
		  AND EXISTS (
			SELECT 1 FROM instrument_identifiers t
			WHERE t.instrument_id = ? AND t.type = instrument_identifiers.type AND t.value = instrument_identifiers.value
		  )`, sourceID, targetID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to drop duplicate identifiers: %w", err)
	}
	dropped = rowsAffected(res)

	res, err = r.q.ExecContext(ctx,
		`UPDATE instrument_identifiers SET instrument_id = ? WHERE instrument_id = ?`, targetID, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to move identifiers: %w", err)
	}

	return rowsAffected(res), dropped, nil
}

type migratingTransaction struct {
	id          int64
	portfolioID int64
	tradeDate   string
	tradeType   string
	quantity    decimal.Decimal
	price       decimal.Decimal
	tradeID     sql.NullString
}

// repointTransactions moves transactions to the target and recomputes their dedup keys.
// A source transaction whose recomputed key already exists on the target is the same trade
// recorded twice and is removed.
func (r *Repository) repointTransactions(ctx context.Context, sourceID, targetID int64) (repointed, deduplicated int, err error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, portfolio_id, trade_date, trade_type, quantity, price, trade_id
		FROM transactions WHERE instrument_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query source transactions: %w", err)
	}

	var pending []migratingTransaction
	for rows.Next() {
		var t migratingTransaction
		if err := rows.Scan(&t.id, &t.portfolioID, &t.tradeDate, &t.tradeType, &t.quantity, &t.price, &t.tradeID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan source transaction: %w", err)
		}
		pending = append(pending, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("error iterating source transactions: %w", err)
	}
	rows.Close()

	for _, t := range pending {
		tradeDate, err := domain.ParseDate(t.tradeDate)
		if err != nil {
			return 0, 0, fmt.Errorf("transaction %d has invalid trade date: %w", t.id, err)
		}

		key := domain.TransactionNaturalKey{
			InstrumentID: targetID,
			TradeDate:    tradeDate,
			TradeType:    t.tradeType,
			Quantity:     t.quantity,
			Price:        t.price,
			TradeID:      t.tradeID.String,
		}.DedupKey()

		var exists int
		if err := r.q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE portfolio_id = ? AND dedup_key = ?`,
			t.portfolioID, key).Scan(&exists); err != nil {
			return 0, 0, fmt.Errorf("failed to check target duplicate: %w", err)
		}

		if exists > 0 {
			if _, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, t.id); err != nil {
				return 0, 0, fmt.Errorf("failed to remove duplicate transaction %d: %w", t.id, err)
			}
			deduplicated++
			continue
		}

		if _, err := r.q.ExecContext(ctx,
			`UPDATE transactions SET instrument_id = ?, dedup_key = ? WHERE id = ?`,
			targetID, key, t.id); err != nil {
			return 0, 0, fmt.Errorf("failed to repoint transaction %d: %w", t.id, err)
		}
		repointed++
	}

	return repointed, deduplicated, nil
}

type migratingHolding struct {
	portfolioID int64
	quantity    decimal.Decimal
	avgPrice    decimal.Decimal
}

// mergeHoldings folds source holdings into target holdings of the same portfolio by
// weighted average, or repoints them when the target has no holding there.
func (r *Repository) mergeHoldings(ctx context.Context, sourceID, targetID int64) (merged, repointed int, err error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT portfolio_id, quantity, avg_price FROM holdings WHERE instrument_id = ? ORDER BY portfolio_id`, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query source holdings: %w", err)
	}

	var pending []migratingHolding
	for rows.Next() {
		var h migratingHolding
		if err := rows.Scan(&h.portfolioID, &h.quantity, &h.avgPrice); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan source holding: %w", err)
		}
		pending = append(pending, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("error iterating source holdings: %w", err)
	}
	rows.Close()

	now := time.Now().Unix()
	for _, h := range pending {
		var targetQty, targetAvg decimal.Decimal
		err := r.q.QueryRowContext(ctx,
			`SELECT quantity, avg_price FROM holdings WHERE portfolio_id = ? AND instrument_id = ?`,
			h.portfolioID, targetID).Scan(&targetQty, &targetAvg)

		switch {
		case err == sql.ErrNoRows:
			if _, err := r.q.ExecContext(ctx,
				`UPDATE holdings SET instrument_id = ?, updated_at = ? WHERE portfolio_id = ? AND instrument_id = ?`,
				targetID, now, h.portfolioID, sourceID); err != nil {
				return 0, 0, fmt.Errorf("failed to repoint holding: %w", err)
			}
			repointed++

		case err != nil:
			return 0, 0, fmt.Errorf("failed to read target holding: %w", err)

		default:
			qty, avg := MergeWeightedAverage(targetQty, targetAvg, h.quantity, h.avgPrice)
			if _, err := r.q.ExecContext(ctx,
				`UPDATE holdings SET quantity = ?, avg_price = ?, updated_at = ? WHERE portfolio_id = ? AND instrument_id = ?`,
				qty.String(), avg.String(), now, h.portfolioID, targetID); err != nil {
				return 0, 0, fmt.Errorf("failed to update merged holding: %w", err)
			}
			if _, err := r.q.ExecContext(ctx,
				`DELETE FROM holdings WHERE portfolio_id = ? AND instrument_id = ?`, h.portfolioID, sourceID); err != nil {
				return 0, 0, fmt.Errorf("failed to remove merged source holding: %w", err)
			}
			merged++
		}
	}

	return merged, repointed, nil
}

// repointCorporateActions moves parent and child references to the target. Actions linking
// source and target to each other would become self-referencing and are removed.
func (r *Repository) repointCorporateActions(ctx context.Context, sourceID, targetID int64) (repointed, dropped int, err error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM corporate_actions
		WHERE (parent_instrument_id = ? AND child_instrument_id = ?)
		   OR (parent_instrument_id = ? AND child_instrument_id = ?)`,
		sourceID, targetID, targetID, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to drop self-referencing corporate actions: %w", err)
	}
	dropped = rowsAffected(res)

	now := time.Now().Unix()
	res, err = r.q.ExecContext(ctx,
		`UPDATE corporate_actions SET parent_instrument_id = ?, updated_at = ? WHERE parent_instrument_id = ?`,
		targetID, now, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to repoint parent corporate actions: %w", err)
	}
	repointed = rowsAffected(res)

	res, err = r.q.ExecContext(ctx,
		`UPDATE corporate_actions SET child_instrument_id = ?, updated_at = ? WHERE child_instrument_id = ?`,
		targetID, now, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to repoint child corporate actions: %w", err)
	}
	repointed += rowsAffected(res)

	return repointed, dropped, nil
}

// affectedPortfolios lists portfolios holding or trading the instrument
func (r *Repository) affectedPortfolios(ctx context.Context, instrumentID int64) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT portfolio_id FROM transactions WHERE instrument_id = ?
		UNION
		SELECT portfolio_id FROM holdings WHERE instrument_id = ?`, instrumentID, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query affected portfolios: %w", err)
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

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
