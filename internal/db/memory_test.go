package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCash(t *testing.T, m *Memory, number, username, balance string) models.CashAccount {
	t.Helper()
	ca := models.CashAccount{Number: number, Username: username, AvailableBalance: decimal.RequireFromString(balance)}
	require.NoError(t, m.CreateCashAccount(context.Background(), &ca))
	return ca
}

func TestMemoryAtomicCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ca := seedCash(t, m, "ES-1", "john", "100")

	err := m.Atomic(ctx, func(tx LedgerTx) error {
		id, err := tx.AccountIdentifier(ctx, "ES-1")
		if err != nil {
			return err
		}
		if err := tx.WriteBalance(ctx, id, decimal.NewFromInt(40)); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, &models.ActivityRecord{Number: "ES-1", Description: "x", Date: time.Now()})
	})
	require.NoError(t, err)

	got, err := m.CashAccountByNumber(ctx, "ES-1")
	require.NoError(t, err)
	assert.Equal(t, ca.ID, got.ID)
	assert.True(t, got.AvailableBalance.Equal(decimal.NewFromInt(40)))

	recs, err := m.ActivityByNumber(ctx, "ES-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemoryAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedCash(t, m, "ES-1", "john", "100")
	boom := errors.New("boom")

	err := m.Atomic(ctx, func(tx LedgerTx) error {
		id, _ := tx.AccountIdentifier(ctx, "ES-1")
		require.NoError(t, tx.WriteBalance(ctx, id, decimal.Zero))
		require.NoError(t, tx.InsertTransfer(ctx, &models.Transfer{ID: "t1", Username: "john"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.CashAccountByNumber(ctx, "ES-1")
	require.NoError(t, err)
	assert.True(t, got.AvailableBalance.Equal(decimal.NewFromInt(100)))

	transfers, err := m.TransfersByUsername(ctx, "john", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestMemoryDuplicateNumbersUseLowestID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	first := seedCash(t, m, "DUP", "john", "10")
	seedCash(t, m, "DUP", "mary", "99")

	err := m.Atomic(ctx, func(tx LedgerTx) error {
		id, err := tx.AccountIdentifier(ctx, "DUP")
		require.NoError(t, err)
		assert.Equal(t, first.ID, id)

		bal, err := tx.CurrentBalance(ctx, "DUP")
		require.NoError(t, err)
		assert.Equal(t, "10", bal.String())
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryMissingAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.CashAccountByNumber(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	err = m.Atomic(ctx, func(tx LedgerTx) error {
		_, err := tx.CurrentBalance(ctx, "nope")
		return err
	})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	_, err = m.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestMemoryFailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedCash(t, m, "ES-1", "john", "100")
	fault := errors.New("disk full")
	m.FailOn(OpInsertActivity, fault)

	err := m.Atomic(ctx, func(tx LedgerTx) error {
		return tx.InsertActivity(ctx, &models.ActivityRecord{Number: "ES-1"})
	})
	assert.ErrorIs(t, err, fault)

	m.FailOn(OpInsertActivity, nil)
	err = m.Atomic(ctx, func(tx LedgerTx) error {
		return tx.InsertActivity(ctx, &models.ActivityRecord{Number: "ES-1"})
	})
	assert.NoError(t, err)
}

func TestMemoryActivityPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Atomic(ctx, func(tx LedgerTx) error {
			return tx.InsertActivity(ctx, &models.ActivityRecord{Number: "ES-1", Amount: decimal.NewFromInt(int64(i))})
		}))
	}

	recs, err := m.ActivityByNumber(ctx, "ES-1", 2, 1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "3", recs[0].Amount.String())
	assert.Equal(t, "2", recs[1].Amount.String())

	recs, err = m.ActivityByNumber(ctx, "ES-1", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryCreditAccountNeedsCashAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ca := seedCash(t, m, "ES-1", "john", "100")

	err := m.CreateCreditAccount(ctx, &models.CreditAccount{CashAccountID: 999, Number: "CC-1", Username: "john"})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	require.NoError(t, m.CreateCreditAccount(ctx, &models.CreditAccount{CashAccountID: ca.ID, Number: "CC-1", Username: "john"}))
	credit, err := m.CreditAccountsByUsername(ctx, "john")
	require.NoError(t, err)
	assert.Len(t, credit, 1)
}
