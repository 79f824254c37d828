package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionNaturalKey identifies one logical trade for de-duplication
type TransactionNaturalKey struct {
	InstrumentID int64
	TradeDate    time.Time
	TradeType    string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	TradeID      string
}

// DedupKey returns the hex sha256 of the canonical natural key.
// Decimals are rendered without trailing zeros so 10 and 10.00 collide.
func (k TransactionNaturalKey) DedupKey() string {
	parts := []string{
		strconv.FormatInt(k.InstrumentID, 10),
		FormatDate(k.TradeDate),
		strings.ToUpper(k.TradeType),
		k.Quantity.String(),
		k.Price.String(),
		strings.TrimSpace(k.TradeID),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
