// Package corporateactions provides the corporate action registry and the adjustment
// function that restates historical trades for splits and bonuses.
package corporateactions

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionType identifies the kind of corporate action
type ActionType string

const (
	ActionSplit      ActionType = "SPLIT"
	ActionBonus      ActionType = "BONUS"
	ActionMerger     ActionType = "MERGER"
	ActionDemerger   ActionType = "DEMERGER"
	ActionNameChange ActionType = "NAME_CHANGE"
)

// Valid reports whether t is a known action type
func (t ActionType) Valid() bool {
	switch t {
	case ActionSplit, ActionBonus, ActionMerger, ActionDemerger, ActionNameChange:
		return true
	}
	return false
}

// RequiresChild reports whether the action maps the parent onto another instrument
func (t ActionType) RequiresChild() bool {
	return t == ActionMerger || t == ActionDemerger
}

// CorporateAction is a restructuring event of a parent instrument effective from ExDate
type CorporateAction struct {
	ID                      int64           `json:"id"`
	Type                    ActionType      `json:"type"`
	ExDate                  time.Time       `json:"ex_date"`
	ParentInstrumentID      int64           `json:"parent_instrument_id"`
	ChildInstrumentID       *int64          `json:"child_instrument_id,omitempty"`
	RatioNumerator          decimal.Decimal `json:"ratio_numerator"`
	RatioDenominator        decimal.Decimal `json:"ratio_denominator"`
	CostPercentageAllocated decimal.Decimal `json:"cost_percentage_allocated"`
	Notes                   string          `json:"notes,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}
