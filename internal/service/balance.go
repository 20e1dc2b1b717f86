package service

import (
	"context"
	"time"

	"github.com/abkawan/banking-transfers/internal/db"
	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/shopspring/decimal"
)

// balanceBook reads and writes cash balances inside one atomic unit.
// Unknown account numbers yield models.ErrAccountNotFound.
type balanceBook struct {
	tx db.LedgerTx
}

func (b balanceBook) current(ctx context.Context, number string) (decimal.Decimal, error) {
	return b.tx.CurrentBalance(ctx, number)
}

func (b balanceBook) identifier(ctx context.Context, number string) (int64, error) {
	return b.tx.AccountIdentifier(ctx, number)
}

func (b balanceBook) write(ctx context.Context, id int64, balance decimal.Decimal) error {
	return b.tx.WriteBalance(ctx, id, balance)
}

// activityLog appends immutable activity records.
type activityLog struct {
	tx db.LedgerTx
}

func (l activityLog) record(ctx context.Context, number, description string, amount, balance decimal.Decimal, when time.Time) (models.ActivityRecord, error) {
	rec := models.ActivityRecord{
		Number:           number,
		Description:      description,
		Amount:           amount,
		AvailableBalance: balance,
		Date:             when,
	}
	if err := l.tx.InsertActivity(ctx, &rec); err != nil {
		return models.ActivityRecord{}, err
	}
	return rec, nil
}
