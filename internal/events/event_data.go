package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TransactionsImportedData contains data for TransactionsImported events
type TransactionsImportedData struct {
	PortfolioID int64  `json:"portfolio_id"`
	BatchID     string `json:"batch_id"`
	Added       int    `json:"added"`
	Duplicates  int    `json:"duplicates"`
	Errors      int    `json:"errors"`
}

// EventType returns the event type for TransactionsImportedData
func (d *TransactionsImportedData) EventType() EventType {
	return TransactionsImported
}

// TransactionDeletedData contains data for TransactionDeleted events
type TransactionDeletedData struct {
	PortfolioID   int64 `json:"portfolio_id"`
	TransactionID int64 `json:"transaction_id"`
}

// EventType returns the event type for TransactionDeletedData
func (d *TransactionDeletedData) EventType() EventType {
	return TransactionDeleted
}

// HoldingsRecalculatedData contains data for HoldingsRecalculated events
type HoldingsRecalculatedData struct {
	PortfolioID  int64 `json:"portfolio_id"`
	Holdings     int   `json:"holdings"`
	Transactions int   `json:"transactions"`
	Dust         int   `json:"dust"`
	Oversold     int   `json:"oversold"`
}

// EventType returns the event type for HoldingsRecalculatedData
func (d *HoldingsRecalculatedData) EventType() EventType {
	return HoldingsRecalculated
}

// InstrumentChangedData contains data for InstrumentChanged events
type InstrumentChangedData struct {
	InstrumentID int64  `json:"instrument_id"`
	Action       string `json:"action"` // updated, identifier_added
}

// EventType returns the event type for InstrumentChangedData
func (d *InstrumentChangedData) EventType() EventType {
	return InstrumentChanged
}

// InstrumentMigratedData contains data for InstrumentMigrated events
type InstrumentMigratedData struct {
	SourceID              int64   `json:"source_id"`
	TargetID              int64   `json:"target_id"`
	AffectedPortfolioIDs  []int64 `json:"affected_portfolio_ids"`
	TransactionsRepointed int     `json:"transactions_repointed"`
	HoldingsMerged        int     `json:"holdings_merged"`
}

// EventType returns the event type for InstrumentMigratedData
func (d *InstrumentMigratedData) EventType() EventType {
	return InstrumentMigrated
}

// CorporateActionChangedData contains data for CorporateActionChanged events
type CorporateActionChangedData struct {
	CorporateActionID  int64  `json:"corporate_action_id"`
	ParentInstrumentID int64  `json:"parent_instrument_id"`
	Action             string `json:"action"` // created, updated, deleted
}

// EventType returns the event type for CorporateActionChangedData
func (d *CorporateActionChangedData) EventType() EventType {
	return CorporateActionChanged
}

// PortfolioClearedData contains data for PortfolioCleared events
type PortfolioClearedData struct {
	PortfolioID         int64 `json:"portfolio_id"`
	TransactionsRemoved int64 `json:"transactions_removed"`
	Deleted             bool  `json:"deleted"`
}

// EventType returns the event type for PortfolioClearedData
func (d *PortfolioClearedData) EventType() EventType {
	return PortfolioCleared
}

// ErrorData contains data for ErrorOccurred events
type ErrorData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorData
func (d *ErrorData) EventType() EventType {
	return ErrorOccurred
}
