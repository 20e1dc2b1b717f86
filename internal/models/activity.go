package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityRecord is an immutable ledger entry. Amount is negative for debits.
// AvailableBalance is the balance snapshot recorded with the entry.
type ActivityRecord struct {
	ID               int64           `json:"id" db:"id"`
	Number           string          `json:"number" db:"number"`
	Description      string          `json:"description" db:"description"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
	Date             time.Time       `json:"date" db:"date"`
}
