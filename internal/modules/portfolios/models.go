// Package portfolios manages user portfolios and the audit trail of imported files.
package portfolios

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is a named container of transactions owned by one user
type Portfolio struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Invested  decimal.Decimal `json:"invested"`
	Current   decimal.Decimal `json:"current"`
	CreatedAt time.Time       `json:"created_at"`
}

// FileUpload records one imported statement file
type FileUpload struct {
	ID               string    `json:"id"`
	PortfolioID      int64     `json:"portfolio_id"`
	UserID           string    `json:"user_id"`
	FileName         string    `json:"file_name"`
	FileHash         string    `json:"file_hash"`
	UploadedAt       time.Time `json:"uploaded_at"`
	TransactionCount int       `json:"transaction_count"`
}

// ClearResult summarises a portfolio clear or delete
type ClearResult struct {
	PortfolioID         int64 `json:"portfolio_id"`
	TransactionsRemoved int64 `json:"transactions_removed"`
	HoldingsRemoved     int64 `json:"holdings_removed"`
	UploadsRemoved      int64 `json:"uploads_removed"`
	Deleted             bool  `json:"deleted"`
}
