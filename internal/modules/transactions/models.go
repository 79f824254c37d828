// Package transactions provides the append-only trade ledger and statement import.
package transactions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

// TradeType is the side of a trade
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// ParseTradeType accepts BUY/SELL in any case, plus the B/S shorthand used by broker statements
func ParseTradeType(value string) (TradeType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY", "B":
		return TradeTypeBuy, nil
	case "SELL", "S":
		return TradeTypeSell, nil
	}
	return "", domain.NewValidationError("invalid trade type %q", value)
}

// Transaction is one immutable ledger entry
type Transaction struct {
	ID                 int64           `json:"id"`
	PortfolioID        int64           `json:"portfolio_id"`
	InstrumentID       int64           `json:"instrument_id"`
	Symbol             string          `json:"symbol"`
	TradeDate          time.Time       `json:"trade_date"`
	OrderExecutionTime *time.Time      `json:"order_execution_time,omitempty"`
	Segment            string          `json:"segment,omitempty"`
	Series             string          `json:"series,omitempty"`
	TradeType          TradeType       `json:"trade_type"`
	Quantity           decimal.Decimal `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	TradeID            string          `json:"trade_id,omitempty"`
	OrderID            string          `json:"order_id,omitempty"`
	DedupKey           string          `json:"-"`
	ImportBatchID      string          `json:"import_batch_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// NaturalKey returns the fields that identify the same logical trade
func (t *Transaction) NaturalKey() domain.TransactionNaturalKey {
	return domain.TransactionNaturalKey{
		InstrumentID: t.InstrumentID,
		TradeDate:    t.TradeDate,
		TradeType:    string(t.TradeType),
		Quantity:     t.Quantity,
		Price:        t.Price,
		TradeID:      t.TradeID,
	}
}

// Validate checks the ledger invariants of a transaction
func (t *Transaction) Validate() error {
	if t.TradeType != TradeTypeBuy && t.TradeType != TradeTypeSell {
		return domain.NewValidationError("invalid trade type %q", t.TradeType)
	}
	if !t.Quantity.IsPositive() {
		return domain.NewValidationError("quantity must be positive, got %s", t.Quantity)
	}
	if t.Price.IsNegative() {
		return domain.NewValidationError("price must not be negative, got %s", t.Price)
	}
	if t.TradeDate.IsZero() {
		return domain.NewValidationError("trade date is required")
	}
	return nil
}

// ImportRecord is one raw statement row. Identifiers are resolved to an instrument in the
// order ISIN, SchemeCode, then Symbol as NSE symbol, BSE code and ticker.
type ImportRecord struct {
	Symbol             string          `json:"symbol"`
	ISIN               string          `json:"isin,omitempty"`
	SchemeCode         string          `json:"scheme_code,omitempty"`
	Exchange           string          `json:"exchange,omitempty"` // NSE or BSE narrows how Symbol is read
	Name               string          `json:"name,omitempty"`
	TradeDate          string          `json:"trade_date"`
	OrderExecutionTime string          `json:"order_execution_time,omitempty"`
	Segment            string          `json:"segment,omitempty"`
	Series             string          `json:"series,omitempty"`
	TradeType          string          `json:"trade_type"`
	Quantity           decimal.Decimal `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	TradeID            string          `json:"trade_id,omitempty"`
	OrderID            string          `json:"order_id,omitempty"`

	malformed error
}

// UnmarshalJSON keeps a record that does not decode so the rest of its batch can still
// be imported; the failure is reported against its row.
func (r *ImportRecord) UnmarshalJSON(data []byte) error {
	type plain ImportRecord
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		*r = ImportRecord{malformed: err}
		return nil
	}
	*r = ImportRecord(decoded)
	return nil
}

// ImportRequest is one uploaded batch
type ImportRequest struct {
	PortfolioID int64          `json:"-"`
	UserID      string         `json:"-"`
	FileName    string         `json:"file_name"`
	FileHash    string         `json:"file_hash,omitempty"`
	Records     []ImportRecord `json:"records"`
}

// RowError reports a rejected record by its zero-based position in the batch
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarises a batch. Duplicates are skipped and are not errors.
type ImportResult struct {
	BatchID             string     `json:"batch_id"`
	Added               int        `json:"added"`
	Duplicates          int        `json:"duplicates"`
	InstrumentsCreated  int        `json:"instruments_created"`
	Errors              []RowError `json:"errors"`
	PreviouslyUploaded  bool       `json:"previously_uploaded"`
	RecalculationFailed bool       `json:"recalculation_failed,omitempty"`
}
