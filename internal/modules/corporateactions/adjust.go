package corporateactions

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/midtierhuman/PortVault-sub000/internal/domain"
)

// ActionHandler restates a (quantity, price) pair for one corporate action
type ActionHandler interface {
	Apply(qty, price decimal.Decimal, action CorporateAction) (decimal.Decimal, decimal.Decimal)
}

// ActionHandlerFunc adapts a function to ActionHandler
type ActionHandlerFunc func(qty, price decimal.Decimal, action CorporateAction) (decimal.Decimal, decimal.Decimal)

// Apply calls f
func (f ActionHandlerFunc) Apply(qty, price decimal.Decimal, action CorporateAction) (decimal.Decimal, decimal.Decimal) {
	return f(qty, price, action)
}

// scaleByRatio multiplies quantity and divides price by numerator/denominator,
// keeping qty × price unchanged
var scaleByRatio = ActionHandlerFunc(func(qty, price decimal.Decimal, action CorporateAction) (decimal.Decimal, decimal.Decimal) {
	if !action.RatioNumerator.IsPositive() || !action.RatioDenominator.IsPositive() {
		return qty, price
	}
	return qty.Mul(action.RatioNumerator).Div(action.RatioDenominator),
		price.Mul(action.RatioDenominator).Div(action.RatioNumerator)
})

// passThrough leaves the position untouched. Mergers and demergers do not yet remap the
// position onto the child instrument; register a handler to add that.
var passThrough = ActionHandlerFunc(func(qty, price decimal.Decimal, _ CorporateAction) (decimal.Decimal, decimal.Decimal) {
	return qty, price
})

// Adjuster folds corporate actions over a trade using one handler per action type
type Adjuster struct {
	mu       sync.RWMutex
	handlers map[ActionType]ActionHandler
}

// NewAdjuster returns an adjuster with the default handlers
func NewAdjuster() *Adjuster {
	return &Adjuster{
		handlers: map[ActionType]ActionHandler{
			ActionSplit:      scaleByRatio,
			ActionBonus:      scaleByRatio,
			ActionMerger:     passThrough,
			ActionDemerger:   passThrough,
			ActionNameChange: passThrough,
		},
	}
}

// RegisterHandler replaces the handler for an action type
func (a *Adjuster) RegisterHandler(actionType ActionType, handler ActionHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[actionType] = handler
}

// Adjust applies every action with ExDate strictly after tradeDate, oldest first.
// Actions sharing an ex-date apply in ID order. The input slice is not modified.
func (a *Adjuster) Adjust(qty, price decimal.Decimal, tradeDate time.Time, actions []CorporateAction) (decimal.Decimal, decimal.Decimal) {
	applicable := ApplicableAfter(tradeDate, actions)
	if len(applicable) == 0 {
		return qty, price
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, action := range applicable {
		handler, ok := a.handlers[action.Type]
		if !ok {
			continue
		}
		qty, price = handler.Apply(qty, price, action)
	}

	return qty, price
}

// ApplicableAfter returns the actions effective after tradeDate in application order
func ApplicableAfter(tradeDate time.Time, actions []CorporateAction) []CorporateAction {
	day := domain.TruncateToDate(tradeDate)

	applicable := make([]CorporateAction, 0, len(actions))
	for _, action := range actions {
		if domain.TruncateToDate(action.ExDate).After(day) {
			applicable = append(applicable, action)
		}
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		di, dj := domain.TruncateToDate(applicable[i].ExDate), domain.TruncateToDate(applicable[j].ExDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return applicable[i].ID < applicable[j].ID
	})

	return applicable
}

var defaultAdjuster = NewAdjuster()

// Adjust restates a trade with the default handlers
func Adjust(qty, price decimal.Decimal, tradeDate time.Time, actions []CorporateAction) (decimal.Decimal, decimal.Decimal) {
	return defaultAdjuster.Adjust(qty, price, tradeDate, actions)
}
