package db

import (
	"context"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerTx is the view of the ledger available inside one atomic unit.
// Lookups by account number pick the row with the lowest internal id when
// several rows share the number.
type LedgerTx interface {
	CurrentBalance(ctx context.Context, number string) (decimal.Decimal, error)
	AccountIdentifier(ctx context.Context, number string) (int64, error)
	// WriteBalance overwrites the balance unconditionally; last writer wins.
	WriteBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	InsertActivity(ctx context.Context, rec *models.ActivityRecord) error
	InsertTransfer(ctx context.Context, t *models.Transfer) error
	CashAccountsByUsername(ctx context.Context, username string) ([]models.CashAccount, error)
}

// Ledger is the durable store behind the transfer engine.
type Ledger interface {
	// Atomic runs fn in one transaction. Any error from fn rolls back
	// every write fn made.
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error

	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	CreateCashAccount(ctx context.Context, ca *models.CashAccount) error
	CreateCreditAccount(ctx context.Context, ca *models.CreditAccount) error
	CashAccountByNumber(ctx context.Context, number string) (*models.CashAccount, error)
	CashAccountsByUsername(ctx context.Context, username string) ([]models.CashAccount, error)
	CreditAccountsByUsername(ctx context.Context, username string) ([]models.CreditAccount, error)
	ActivityByNumber(ctx context.Context, number string, limit, offset int) ([]models.ActivityRecord, error)
	TransfersByUsername(ctx context.Context, username string, limit, offset int) ([]models.Transfer, error)
}
