package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/abkawan/banking-transfers/internal/db"
	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/abkawan/banking-transfers/internal/money"
)

// ErrHistoryUnavailable is returned when no transfer history store is configured.
var ErrHistoryUnavailable = errors.New("transfer history is not configured")

// HistoryReader lists committed transfers by account.
type HistoryReader interface {
	TransfersByAccount(ctx context.Context, number string, limit, offset int) ([]*models.TransferCommitted, error)
}

// handles account operations
type AccountService struct {
	ledger  db.Ledger
	history HistoryReader
}

// creates a new Account Service. history may be nil.
func NewAccountService(ledger db.Ledger, history HistoryReader) *AccountService {
	return &AccountService{
		ledger:  ledger,
		history: history,
	}
}

// CreateAccount onboards a customer.
func (s *AccountService) CreateAccount(ctx context.Context, req *models.CreateAccountRequest) (*models.Account, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	account := &models.Account{
		Username: req.Username,
		Name:     req.Name,
		Surname:  req.Surname,
		Password: req.Password,
	}
	if err := s.ledger.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// CreateCashAccount opens a cash account for an existing customer.
// Account numbers are not checked for uniqueness.
func (s *AccountService) CreateCashAccount(ctx context.Context, req *models.CreateCashAccountRequest) (*models.CashAccount, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.ledger.GetAccount(ctx, req.Username); err != nil {
		return nil, err
	}

	ca := &models.CashAccount{
		Number:           req.Number,
		Username:         req.Username,
		Description:      req.Description,
		AvailableBalance: money.Round2(req.InitialBalance),
	}
	if err := s.ledger.CreateCashAccount(ctx, ca); err != nil {
		return nil, fmt.Errorf("failed to create cash account: %w", err)
	}
	return ca, nil
}

// CreateCreditAccount opens a credit line attached to a cash account.
func (s *AccountService) CreateCreditAccount(ctx context.Context, req *models.CreateCreditAccountRequest) (*models.CreditAccount, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	cash, err := s.ledger.CashAccountByNumber(ctx, req.CashAccountNumber)
	if err != nil {
		return nil, err
	}

	ca := &models.CreditAccount{
		CashAccountID:    cash.ID,
		Number:           req.Number,
		Username:         cash.Username,
		Description:      req.Description,
		AvailableBalance: money.Round2(req.InitialBalance),
	}
	if err := s.ledger.CreateCreditAccount(ctx, ca); err != nil {
		return nil, fmt.Errorf("failed to create credit account: %w", err)
	}
	return ca, nil
}

func (s *AccountService) CashAccounts(ctx context.Context, username string) ([]models.CashAccount, error) {
	accounts, err := s.ledger.CashAccountsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get cash accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) CreditAccounts(ctx context.Context, username string) ([]models.CreditAccount, error) {
	accounts, err := s.ledger.CreditAccountsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get credit accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) Balance(ctx context.Context, number string) (*models.BalanceResponse, error) {
	ca, err := s.ledger.CashAccountByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return &models.BalanceResponse{Number: ca.Number, AvailableBalance: ca.AvailableBalance}, nil
}

// Activity returns the newest records first.
func (s *AccountService) Activity(ctx context.Context, number string, limit, offset int) ([]models.ActivityRecord, error) {
	records, err := s.ledger.ActivityByNumber(ctx, number, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return records, nil
}

func (s *AccountService) Transfers(ctx context.Context, username string, limit, offset int) ([]models.Transfer, error) {
	transfers, err := s.ledger.TransfersByUsername(ctx, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers: %w", err)
	}
	return transfers, nil
}

func (s *AccountService) History(ctx context.Context, number string, limit, offset int) ([]*models.TransferCommitted, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	events, err := s.history.TransfersByAccount(ctx, number, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer history: %w", err)
	}
	return events, nil
}
