package corporateactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

const actionColumns = `id, type, ex_date, parent_instrument_id, child_instrument_id,
	ratio_numerator, ratio_denominator, cost_percentage_allocated, notes, created_at, updated_at`

// Repository handles corporate action persistence
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new corporate action repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "corporate_actions").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: r.db, q: tx, log: r.log}
}

// Create inserts an action and sets its ID and timestamps
func (r *Repository) Create(ctx context.Context, action *CorporateAction) error {
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO corporate_actions
			(type, ex_date, parent_instrument_id, child_instrument_id, ratio_numerator, ratio_denominator,
			 cost_percentage_allocated, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(action.Type),
		domain.FormatDate(action.ExDate),
		action.ParentInstrumentID,
		action.ChildInstrumentID,
		action.RatioNumerator.String(),
		action.RatioDenominator.String(),
		action.CostPercentageAllocated.String(),
		action.Notes,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert corporate action: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get corporate action id: %w", err)
	}
	action.ID = id

	return nil
}

// Update rewrites an action. Returns false when it does not exist.
func (r *Repository) Update(ctx context.Context, action *CorporateAction) (bool, error) {
	action.UpdatedAt = time.Now().UTC()

	res, err := r.q.ExecContext(ctx, `
		UPDATE corporate_actions SET
			type = ?, ex_date = ?, parent_instrument_id = ?, child_instrument_id = ?,
			ratio_numerator = ?, ratio_denominator = ?, cost_percentage_allocated = ?,
			notes = ?, updated_at = ?
		WHERE id = ?`,
		string(action.Type),
		domain.FormatDate(action.ExDate),
		action.ParentInstrumentID,
		action.ChildInstrumentID,
		action.RatioNumerator.String(),
		action.RatioDenominator.String(),
		action.CostPercentageAllocated.String(),
		action.Notes,
		action.UpdatedAt.Unix(),
		action.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update corporate action %d: %w", action.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes an action. Returns false when it does not exist.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM corporate_actions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete corporate action %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetByID returns the action or nil when it does not exist
func (r *Repository) GetByID(ctx context.Context, id int64) (*CorporateAction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM corporate_actions WHERE id = ?`, id)

	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get corporate action %d: %w", id, err)
	}
	return action, nil
}

// List returns every action, newest ex-date first
func (r *Repository) List(ctx context.Context) ([]CorporateAction, error) {
	return r.query(ctx, `SELECT `+actionColumns+` FROM corporate_actions ORDER BY ex_date DESC, id DESC`)
}

// GetByInstrument returns actions where the instrument is parent or child, newest ex-date first
func (r *Repository) GetByInstrument(ctx context.Context, instrumentID int64) ([]CorporateAction, error) {
	return r.query(ctx, `SELECT `+actionColumns+` FROM corporate_actions
		WHERE parent_instrument_id = ? OR child_instrument_id = ?
		ORDER BY ex_date DESC, id DESC`, instrumentID, instrumentID)
}

// GetApplicable returns actions where the instrument is the parent, oldest first,
// optionally limited to ex-dates before the given day
func (r *Repository) GetApplicable(ctx context.Context, instrumentID int64, before *time.Time) ([]CorporateAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corporate_actions WHERE parent_instrument_id = ?`
	args := []interface{}{instrumentID}

	if before != nil {
		query += ` AND ex_date < ?`
		args = append(args, domain.FormatDate(*before))
	}
	query += ` ORDER BY ex_date ASC, id ASC`

	return r.query(ctx, query, args...)
}

// GetApplicableForInstruments batch-loads parent-side actions for several instruments, oldest first per instrument
func (r *Repository) GetApplicableForInstruments(ctx context.Context, instrumentIDs []int64) (map[int64][]CorporateAction, error) {
	result := make(map[int64][]CorporateAction, len(instrumentIDs))
	if len(instrumentIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(instrumentIDs)), ",")
	args := make([]interface{}, len(instrumentIDs))
	for i, id := range instrumentIDs {
		args[i] = id
	}

	actions, err := r.query(ctx, `SELECT `+actionColumns+` FROM corporate_actions
		WHERE parent_instrument_id IN (`+placeholders+`)
		ORDER BY parent_instrument_id, ex_date ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}

	for _, action := range actions {
		result[action.ParentInstrumentID] = append(result[action.ParentInstrumentID], action)
	}
	return result, nil
}

// InstrumentExists reports whether an instrument id is present
func (r *Repository) InstrumentExists(ctx context.Context, instrumentID int64) (bool, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments WHERE id = ?`, instrumentID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check instrument %d: %w", instrumentID, err)
	}
	return n > 0, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]CorporateAction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query corporate actions: %w", err)
	}
	defer rows.Close()

	result := []CorporateAction{}
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan corporate action: %w", err)
		}
		result = append(result, *action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corporate actions: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*CorporateAction, error) {
	var (
		action     CorporateAction
		actionType string
		exDate     string
		childID    sql.NullInt64
		num        decimal.Decimal
		den        decimal.Decimal
		costPct    decimal.Decimal
		createdAt  int64
		updatedAt  int64
	)

	if err := row.Scan(&action.ID, &actionType, &exDate, &action.ParentInstrumentID, &childID,
		&num, &den, &costPct, &action.Notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseDate(exDate)
	if err != nil {
		return nil, fmt.Errorf("corporate action %d: %w", action.ID, err)
	}

	action.Type = ActionType(actionType)
	action.ExDate = parsed
	if childID.Valid {
		child := childID.Int64
		action.ChildInstrumentID = &child
	}
	action.RatioNumerator = num
	action.RatioDenominator = den
	action.CostPercentageAllocated = costPct
	action.CreatedAt = time.Unix(createdAt, 0).UTC()
	action.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &action, nil
}
