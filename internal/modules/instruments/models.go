// Package instruments provides the instrument directory: canonical instruments,
// their alternate identifiers, identifier resolution and instrument migration.
package instruments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentType classifies an instrument
type InstrumentType string

const (
	InstrumentTypeMutualFund InstrumentType = "MUTUAL_FUND"
	InstrumentTypeEquity     InstrumentType = "EQUITY"
)

// Valid reports whether t is a known instrument type
func (t InstrumentType) Valid() bool {
	return t == InstrumentTypeMutualFund || t == InstrumentTypeEquity
}

// IdentifierType is the namespace of an identifier value
type IdentifierType string

const (
	IdentifierISIN       IdentifierType = "ISIN"
	IdentifierTicker     IdentifierType = "TICKER"
	IdentifierNSESymbol  IdentifierType = "NSE_SYMBOL"
	IdentifierBSECode    IdentifierType = "BSE_CODE"
	IdentifierSchemeCode IdentifierType = "SCHEME_CODE"
)

// Valid reports whether t is a known identifier type
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierISIN, IdentifierTicker, IdentifierNSESymbol, IdentifierBSECode, IdentifierSchemeCode:
		return true
	}
	return false
}

// DisplayOrder is the preference order when picking a label for an instrument
var DisplayOrder = []IdentifierType{
	IdentifierTicker,
	IdentifierNSESymbol,
	IdentifierBSECode,
	IdentifierSchemeCode,
	IdentifierISIN,
}

// NormalizeValue trims and upper-cases an identifier value
func NormalizeValue(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// Instrument is a tradable security independent of how a data source names it
type Instrument struct {
	ID          int64          `json:"id"`
	Type        InstrumentType `json:"type"`
	Name        string         `json:"name"`
	CreatedAt   time.Time      `json:"created_at"`
	Identifiers []Identifier   `json:"identifiers,omitempty"`
}

// Identifier maps an external code to an instrument, optionally for a validity window
type Identifier struct {
	ID           int64          `json:"id"`
	InstrumentID int64          `json:"instrument_id"`
	Type         IdentifierType `json:"type"`
	Value        string         `json:"value"`
	ValidFrom    *time.Time     `json:"valid_from,omitempty"`
	ValidTo      *time.Time     `json:"valid_to,omitempty"`
}

// ActiveAt reports whether the identifier is valid on the given day
func (i Identifier) ActiveAt(day time.Time) bool {
	if i.ValidFrom != nil && day.Before(*i.ValidFrom) {
		return false
	}
	if i.ValidTo != nil && day.After(*i.ValidTo) {
		return false
	}
	return true
}

// MigrationResult reports what Migrate moved from the source to the target instrument
type MigrationResult struct {
	SourceID                  int64   `json:"source_id"`
	TargetID                  int64   `json:"target_id"`
	IdentifiersMoved          int     `json:"identifiers_moved"`
	IdentifiersDropped        int     `json:"identifiers_dropped"`
	TransactionsRepointed     int     `json:"transactions_repointed"`
	TransactionsDeduplicated  int     `json:"transactions_deduplicated"`
	HoldingsMerged            int     `json:"holdings_merged"`
	HoldingsRepointed         int     `json:"holdings_repointed"`
	CorporateActionsRepointed int     `json:"corporate_actions_repointed"`
	CorporateActionsDropped   int     `json:"corporate_actions_dropped"`
	AffectedPortfolioIDs      []int64 `json:"affected_portfolio_ids"`
}

// Dependents counts rows that still reference an instrument
type Dependents struct {
	Transactions     int `json:"transactions"`
	Holdings         int `json:"holdings"`
	CorporateActions int `json:"corporate_actions"`
}

// Any reports whether anything references the instrument
func (d Dependents) Any() bool {
	return d.Transactions > 0 || d.Holdings > 0 || d.CorporateActions > 0
}

// MergeWeightedAverage combines two positions in the same instrument.
// A zero combined quantity yields a zero average.
func MergeWeightedAverage(q1, p1, q2, p2 decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	qty := q1.Add(q2)
	if qty.IsZero() {
		return qty, decimal.Zero
	}
	avg := q1.Mul(p1).Add(q2.Mul(p2)).Div(qty)
	return qty, avg
}
