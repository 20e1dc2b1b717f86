package models

import (
	"github.com/shopspring/decimal"
)

// Account is a bank customer. Created at onboarding, never mutated by transfers.
type Account struct {
	Username string `json:"username" db:"username"`
	Name     string `json:"name" db:"name"`
	Surname  string `json:"surname" db:"surname"`
	Password string `json:"-" db:"password"`
}

// CashAccount holds money. Number is not unique in the store.
type CashAccount struct {
	ID               int64           `json:"id" db:"id"`
	Number           string          `json:"number" db:"number"`
	Username         string          `json:"username" db:"username"`
	Description      string          `json:"description" db:"description"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
}

// CreditAccount is a separate balance row tied to a cash account.
// The transfer engine never writes it.
type CreditAccount struct {
	ID               int64           `json:"id" db:"id"`
	CashAccountID    int64           `json:"cash_account_id" db:"cash_account_id"`
	Number           string          `json:"number" db:"number"`
	Username         string          `json:"username" db:"username"`
	Description      string          `json:"description" db:"description"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
}

type CreateAccountRequest struct {
	Username string `json:"username" validate:"required,max=80"`
	Name     string `json:"name" validate:"max=80"`
	Surname  string `json:"surname" validate:"max=80"`
	Password string `json:"password" validate:"max=80"`
}

type CreateCashAccountRequest struct {
	Number         string          `json:"number" validate:"required,max=80"`
	Username       string          `json:"username" validate:"required,max=80"`
	Description    string          `json:"description" validate:"max=80"`
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"nonnegative_decimal"`
}

type CreateCreditAccountRequest struct {
	CashAccountNumber string          `json:"cash_account_number" validate:"required,max=80"`
	Number            string          `json:"number" validate:"required,max=80"`
	Description       string          `json:"description" validate:"max=80"`
	InitialBalance    decimal.Decimal `json:"initial_balance"`
}

// BalanceResponse is returned by the balance endpoint
type BalanceResponse struct {
	Number           string          `json:"number"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}
