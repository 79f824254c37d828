package portfolios

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

const uploadColumns = `id, portfolio_id, user_id, file_name, file_hash, uploaded_at, transaction_count`

// UploadRepository keeps the audit trail of imported files. The hash index is not unique:
// re-uploads are reported, not blocked.
type UploadRepository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewUploadRepository creates a new upload audit repository
func NewUploadRepository(db *sql.DB, log zerolog.Logger) *UploadRepository {
	return &UploadRepository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "file_uploads").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *UploadRepository) WithTx(tx *sql.Tx) *UploadRepository {
	return &UploadRepository{db: r.db, q: tx, log: r.log}
}

// Record stores an upload, assigning an id and timestamp when missing
func (r *UploadRepository) Record(ctx context.Context, upload *FileUpload) error {
	if upload.ID == "" {
		upload.ID = uuid.NewString()
	}
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO file_uploads (id, portfolio_id, user_id, file_name, file_hash, uploaded_at, transaction_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		upload.ID, upload.PortfolioID, upload.UserID, upload.FileName, upload.FileHash,
		upload.UploadedAt.Unix(), upload.TransactionCount)
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// ExistsByHash reports whether a file with the same hash was uploaded to the portfolio before
func (r *UploadRepository) ExistsByHash(ctx context.Context, portfolioID int64, fileHash string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_uploads WHERE portfolio_id = ? AND file_hash = ?`,
		portfolioID, fileHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check upload hash: %w", err)
	}
	return n > 0, nil
}

// ListByPortfolio returns uploads newest first
func (r *UploadRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]FileUpload, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM file_uploads WHERE portfolio_id = ? ORDER BY uploaded_at DESC, id`,
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	result := []FileUpload{}
	for rows.Next() {
		var (
			u          FileUpload
			uploadedAt int64
		)
		if err := rows.Scan(&u.ID, &u.PortfolioID, &u.UserID, &u.FileName, &u.FileHash, &uploadedAt, &u.TransactionCount); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		u.UploadedAt = time.Unix(uploadedAt, 0).UTC()
		result = append(result, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}
	return result, nil
}

// DeleteByPortfolio removes the audit trail of a portfolio
func (r *UploadRepository) DeleteByPortfolio(ctx context.Context, portfolioID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM file_uploads WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete uploads of portfolio %d: %w", portfolioID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
