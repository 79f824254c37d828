package instruments

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

const instrumentColumns = `id, type, name, created_at`

const identifierColumns = `id, instrument_id, type, value, valid_from, valid_to`

// Repository handles instrument and identifier persistence
type Repository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new instrument repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "instruments").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: r.db, q: tx, log: r.log}
}

// Create inserts an instrument and sets its ID
func (r *Repository) Create(ctx context.Context, inst *Instrument) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO instruments (type, name, created_at) VALUES (?, ?, ?)`,
		string(inst.Type), inst.Name, inst.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert instrument: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get instrument id: %w", err)
	}
	inst.ID = id

	return nil
}

// GetByID returns the instrument or nil when it does not exist
func (r *Repository) GetByID(ctx context.Context, id int64) (*Instrument, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id)

	inst, err := scanInstrument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %d: %w", id, err)
	}

	return inst, nil
}

// List returns all instruments ordered by name
func (r *Repository) List(ctx context.Context) ([]Instrument, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+instrumentColumns+` FROM instruments ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	result := []Instrument{}
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		result = append(result, *inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return result, nil
}

// Update changes the mutable fields of an instrument. Returns false when it does not exist.
func (r *Repository) Update(ctx context.Context, id int64, instrumentType InstrumentType, name string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE instruments SET type = ?, name = ? WHERE id = ?`,
		string(instrumentType), name, id)
	if err != nil {
		return false, fmt.Errorf("failed to update instrument %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n > 0, nil
}

// Delete removes an instrument and its identifiers
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM instrument_identifiers WHERE instrument_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete identifiers of instrument %d: %w", id, err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM instruments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete instrument %d: %w", id, err)
	}
	return nil
}

// CountDependents counts transactions, holdings and corporate actions referencing an instrument
func (r *Repository) CountDependents(ctx context.Context, id int64) (Dependents, error) {
	var d Dependents

	err := r.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transactions WHERE instrument_id = ?),
			(SELECT COUNT(*) FROM holdings WHERE instrument_id = ?),
			(SELECT COUNT(*) FROM corporate_actions WHERE parent_instrument_id = ? OR child_instrument_id = ?)`,
		id, id, id, id).Scan(&d.Transactions, &d.Holdings, &d.CorporateActions)
	if err != nil {
		return d, fmt.Errorf("failed to count dependents of instrument %d: %w", id, err)
	}

	return d, nil
}

// Resolve finds the instrument owning an identifier. When asOf is set only identifiers
// valid on that day match; otherwise any match is returned, preferring one valid today.
// Returns nil when nothing matches.
func (r *Repository) Resolve(ctx context.Context, idType IdentifierType, value string, asOf *time.Time) (*Instrument, error) {
	query := `SELECT i.id, i.type, i.name, i.created_at
		FROM instrument_identifiers ii
		JOIN instruments i ON i.id = ii.instrument_id
		WHERE ii.type = ? AND ii.value = ?`
	args := []interface{}{string(idType), NormalizeValue(value)}

	if asOf != nil {
		day := domain.FormatDate(*asOf)
		query += ` AND (ii.valid_from IS NULL OR ii.valid_from <= ?) AND (ii.valid_to IS NULL OR ii.valid_to >= ?)`
		args = append(args, day, day)
		query += ` ORDER BY`
	} else {
		// Identifiers valid today rank ahead of expired or future ones
		today := domain.FormatDate(time.Now().UTC())
		query += ` ORDER BY ((ii.valid_from IS NULL OR ii.valid_from <= ?) AND (ii.valid_to IS NULL OR ii.valid_to >= ?)) DESC,`
		args = append(args, today, today)
	}

	// Then the most recently started validity window, then the oldest instrument
	query += ` (ii.valid_from IS NULL), ii.valid_from DESC, i.id ASC LIMIT 1`

	inst, err := scanInstrument(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s %q: %w", idType, value, err)
	}

	return inst, nil
}

// IdentifierExists reports whether the exact (instrument, type, value) triple is stored
func (r *Repository) IdentifierExists(ctx context.Context, instrumentID int64, idType IdentifierType, value string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instrument_identifiers WHERE instrument_id = ? AND type = ? AND value = ?`,
		instrumentID, string(idType), NormalizeValue(value)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check identifier: %w", err)
	}
	return n > 0, nil
}

// AddIdentifier inserts an identifier and sets its ID
func (r *Repository) AddIdentifier(ctx context.Context, ident *Identifier) error {
	ident.Value = NormalizeValue(ident.Value)

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO instrument_identifiers (instrument_id, type, value, valid_from, valid_to) VALUES (?, ?, ?, ?, ?)`,
		ident.InstrumentID, string(ident.Type), ident.Value, formatOptionalDate(ident.ValidFrom), formatOptionalDate(ident.ValidTo))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("identifier %s %q already exists on instrument %d", ident.Type, ident.Value, ident.InstrumentID)
		}
		return fmt.Errorf("failed to insert identifier: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get identifier id: %w", err)
	}
	ident.ID = id

	return nil
}

// ListIdentifiers returns the identifiers of an instrument
func (r *Repository) ListIdentifiers(ctx context.Context, instrumentID int64) ([]Identifier, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+identifierColumns+` FROM instrument_identifiers WHERE instrument_id = ? ORDER BY type, value`,
		instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifiers: %w", err)
	}
	defer rows.Close()

	return scanIdentifiers(rows)
}

// ListIdentifiersFor returns identifiers for several instruments keyed by instrument id
func (r *Repository) ListIdentifiersFor(ctx context.Context, instrumentIDs []int64) (map[int64][]Identifier, error) {
	result := make(map[int64][]Identifier, len(instrumentIDs))
	if len(instrumentIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(instrumentIDs)), ",")
	args := make([]interface{}, len(instrumentIDs))
	for i, id := range instrumentIDs {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+identifierColumns+` FROM instrument_identifiers WHERE instrument_id IN (`+placeholders+`) ORDER BY instrument_id, type, value`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifiers: %w", err)
	}
	defer rows.Close()

	idents, err := scanIdentifiers(rows)
	if err != nil {
		return nil, err
	}
	for _, ident := range idents {
		result[ident.InstrumentID] = append(result[ident.InstrumentID], ident)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (*Instrument, error) {
	var (
		inst      Instrument
		instType  string
		createdAt int64
	)

	if err := row.Scan(&inst.ID, &instType, &inst.Name, &createdAt); err != nil {
		return nil, err
	}
	inst.Type = InstrumentType(instType)
	inst.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &inst, nil
}

func scanIdentifiers(rows *sql.Rows) ([]Identifier, error) {
	result := []Identifier{}
	for rows.Next() {
		var (
			ident     Identifier
			idType    string
			validFrom sql.NullString
			validTo   sql.NullString
		)
		if err := rows.Scan(&ident.ID, &ident.InstrumentID, &idType, &ident.Value, &validFrom, &validTo); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		ident.Type = IdentifierType(idType)
		ident.ValidFrom = parseOptionalDate(validFrom)
		ident.ValidTo = parseOptionalDate(validTo)
		result = append(result, ident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifiers: %w", err)
	}

	return result, nil
}

func formatOptionalDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return domain.FormatDate(*t)
}

func parseOptionalDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := domain.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// isUniqueViolation matches the constraint message of both SQLite drivers
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
