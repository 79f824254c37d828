// Package events provides the in-process event bus and typed event payloads.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	TransactionsImported   EventType = "TRANSACTIONS_IMPORTED"
	TransactionDeleted     EventType = "TRANSACTION_DELETED"
	HoldingsRecalculated   EventType = "HOLDINGS_RECALCULATED"
	InstrumentChanged      EventType = "INSTRUMENT_CHANGED"
	InstrumentMigrated     EventType = "INSTRUMENT_MIGRATED"
	CorporateActionChanged EventType = "CORPORATE_ACTION_CHANGED"
	PortfolioCleared       EventType = "PORTFOLIO_CLEARED"
	ErrorOccurred          EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every type a subscriber can ask for
var AllEventTypes = []EventType{
	TransactionsImported,
	TransactionDeleted,
	HoldingsRecalculated,
	InstrumentChanged,
	InstrumentMigrated,
	CorporateActionChanged,
	PortfolioCleared,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
