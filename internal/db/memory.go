package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Ledger. Atomic works on a copy of the state and
// swaps it in only when the callback succeeds. Atomic units are serialized,
// so it never shows the lost-update anomaly Postgres can.
type Memory struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
}

type memState struct {
	nextID    int64
	accounts  map[string]models.Account
	cash      []models.CashAccount
	credit    []models.CreditAccount
	transfers []models.Transfer
	activity  []models.ActivityRecord
}

func NewMemory() *Memory {
	return &Memory{
		state:  &memState{accounts: make(map[string]models.Account)},
		faults: make(map[string]error),
	}
}

// Fault operations accepted by FailOn.
const (
	OpWriteBalance   = "write_balance"
	OpInsertActivity = "insert_activity"
	OpInsertTransfer = "insert_transfer"
)

// FailOn makes every later call of op inside Atomic return err.
// A nil err removes the fault.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:    s.nextID,
		accounts:  make(map[string]models.Account, len(s.accounts)),
		cash:      append([]models.CashAccount(nil), s.cash...),
		credit:    append([]models.CreditAccount(nil), s.credit...),
		transfers: append([]models.Transfer(nil), s.transfers...),
		activity:  append([]models.ActivityRecord(nil), s.activity...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

func (s *memState) newID() int64 {
	s.nextID++
	return s.nextID
}

// firstCash returns the index of the lowest-id row with the number.
func (s *memState) firstCash(number string) (int, bool) {
	idx := -1
	for i, ca := range s.cash {
		if ca.Number == number && (idx < 0 || ca.ID < s.cash[idx].ID) {
			idx = i
		}
	}
	return idx, idx >= 0
}

func (s *memState) cashByUsername(username string) []models.CashAccount {
	out := []models.CashAccount{}
	for _, ca := range s.cash {
		if ca.Username == username {
			out = append(out, ca)
		}
	}
	return out
}

func (m *Memory) Atomic(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{state: work, faults: m.faults}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) CreateAccount(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.accounts[a.Username]; ok {
		return fmt.Errorf("%w: %s", models.ErrUserExists, a.Username)
	}
	m.state.accounts[a.Username] = *a
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.accounts[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &a, nil
}

func (m *Memory) CreateCashAccount(ctx context.Context, ca *models.CashAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ca.ID = m.state.newID()
	m.state.cash = append(m.state.cash, *ca)
	return nil
}

func (m *Memory) CreateCreditAccount(ctx context.Context, ca *models.CreditAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, c := range m.state.cash {
		if c.ID == ca.CashAccountID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: id %d", models.ErrAccountNotFound, ca.CashAccountID)
	}
	ca.ID = m.state.newID()
	m.state.credit = append(m.state.credit, *ca)
	return nil
}

func (m *Memory) CashAccountByNumber(ctx context.Context, number string) (*models.CashAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.state.firstCash(number)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, number)
	}
	ca := m.state.cash[i]
	return &ca, nil
}

func (m *Memory) CashAccountsByUsername(ctx context.Context, username string) ([]models.CashAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.cashByUsername(username), nil
}

func (m *Memory) CreditAccountsByUsername(ctx context.Context, username string) ([]models.CreditAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CreditAccount{}
	for _, ca := range m.state.credit {
		if ca.Username == username {
			out = append(out, ca)
		}
	}
	return out, nil
}

func (m *Memory) ActivityByNumber(ctx context.Context, number string, limit, offset int) ([]models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.ActivityRecord
	for _, rec := range m.state.activity {
		if rec.Number == number {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return page(matched, limit, offset), nil
}

func (m *Memory) TransfersByUsername(ctx context.Context, username string, limit, offset int) ([]models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Transfer
	for i := len(m.state.transfers) - 1; i >= 0; i-- {
		if t := m.state.transfers[i]; t.Username == username {
			matched = append(matched, t)
		}
	}
	return page(matched, limit, offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	out := []T{}
	if offset >= len(in) {
		return out
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return append(out, in...)
}

type memTx struct {
	state  *memState
	faults map[string]error
}

func (t *memTx) CurrentBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	i, ok := t.state.firstCash(number)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrAccountNotFound, number)
	}
	return t.state.cash[i].AvailableBalance, nil
}

func (t *memTx) AccountIdentifier(ctx context.Context, number string) (int64, error) {
	i, ok := t.state.firstCash(number)
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrAccountNotFound, number)
	}
	return t.state.cash[i].ID, nil
}

func (t *memTx) WriteBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	if err := t.faults[OpWriteBalance]; err != nil {
		return err
	}
	for i := range t.state.cash {
		if t.state.cash[i].ID == id {
			t.state.cash[i].AvailableBalance = balance
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", models.ErrAccountNotFound, id)
}

func (t *memTx) InsertActivity(ctx context.Context, rec *models.ActivityRecord) error {
	if err := t.faults[OpInsertActivity]; err != nil {
		return err
	}
	rec.ID = t.state.newID()
	t.state.activity = append(t.state.activity, *rec)
	return nil
}

func (t *memTx) InsertTransfer(ctx context.Context, tr *models.Transfer) error {
	if err := t.faults[OpInsertTransfer]; err != nil {
		return err
	}
	for _, existing := range t.state.transfers {
		if existing.ID == tr.ID {
			return fmt.Errorf("transfer %s already recorded", tr.ID)
		}
	}
	t.state.transfers = append(t.state.transfers, *tr)
	return nil
}

func (t *memTx) CashAccountsByUsername(ctx context.Context, username string) ([]models.CashAccount, error) {
	return t.state.cashByUsername(username), nil
}
