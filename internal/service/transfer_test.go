package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abkawan/banking-transfers/internal/config"
	"github.com/abkawan/banking-transfers/internal/db"
	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/abkawan/banking-transfers/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	ledger *db.Memory
	holder *session.Memory
	svc    *TransferService
	pub    *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.TransferCommitted
	err    error
}

func (p *recordingPublisher) PublishTransferCommitted(ctx context.Context, evt *models.TransferCommitted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func newFixture(t *testing.T, opts ...TransferOption) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		ledger: db.NewMemory(),
		holder: session.NewMemory(time.Hour),
		pub:    &recordingPublisher{},
	}
	require.NoError(t, f.ledger.CreateAccount(ctx, &models.Account{Username: "john"}))
	require.NoError(t, f.ledger.CreateAccount(ctx, &models.Account{Username: "mary"}))
	require.NoError(t, f.ledger.CreateCashAccount(ctx, &models.CashAccount{Number: "ES-1000", Username: "john", AvailableBalance: dec("1000.00")}))
	require.NoError(t, f.ledger.CreateCashAccount(ctx, &models.CashAccount{Number: "ES-2000", Username: "mary", AvailableBalance: dec("500.00")}))

	base := []TransferOption{
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(f.pub),
	}
	f.svc = NewTransferService(f.ledger, f.holder, append(base, opts...)...)
	return f
}

func (f *fixture) balance(t *testing.T, number string) decimal.Decimal {
	t.Helper()
	ca, err := f.ledger.CashAccountByNumber(context.Background(), number)
	require.NoError(t, err)
	return ca.AvailableBalance
}

func (f *fixture) activity(t *testing.T, number string) []models.ActivityRecord {
	t.Helper()
	recs, err := f.ledger.ActivityByNumber(context.Background(), number, 100, 0)
	require.NoError(t, err)
	return recs
}

func (f *fixture) transfers(t *testing.T, username string) []models.Transfer {
	t.Helper()
	out, err := f.ledger.TransfersByUsername(context.Background(), username, 100, 0)
	require.NoError(t, err)
	return out
}

func request(amount string) *models.TransferRequest {
	return &models.TransferRequest{
		FromAccount: "ES-1000",
		ToAccount:   "ES-2000",
		Description: "rent",
		Amount:      dec(amount),
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestProposeCommitsImmediately(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Propose(context.Background(), "sess", "john", request("100.00"), false)
	require.NoError(t, err)
	assert.Equal(t, models.Committed, res.State)
	assertDec(t, "20", res.Transfer.Fee)

	assertDec(t, "880.00", f.balance(t, "ES-1000"))
	assertDec(t, "600.00", f.balance(t, "ES-2000"))

	require.Len(t, res.Activity, 3)
	assertDec(t, "900.00", res.Activity[0].AvailableBalance)
	assertDec(t, "880.00", res.Activity[1].AvailableBalance)
	assertDec(t, "600.00", res.Activity[2].AvailableBalance)

	assertDec(t, "-100", res.Activity[0].Amount)
	assertDec(t, "-20", res.Activity[1].Amount)
	assertDec(t, "100", res.Activity[2].Amount)

	assert.Equal(t, "TRANSFER: rent", res.Activity[0].Description)
	assert.Equal(t, "TRANSFER FEE", res.Activity[1].Description)
	assert.Equal(t, "TRANSFER: rent", res.Activity[2].Description)
	assert.Equal(t, "ES-2000", res.Activity[2].Number)
}

func TestCommitScenarioWithFlatFee(t *testing.T) {
	f := newFixture(t)
	tr := &models.Transfer{
		ID: "t-1", FromAccount: "ES-1000", ToAccount: "ES-2000", Description: "rent",
		Amount: dec("100.00"), Fee: dec("20.00"), Username: "john", Date: fixedNow,
	}

	records, err := f.svc.Commit(context.Background(), tr)
	require.NoError(t, err)

	assertDec(t, "880.00", f.balance(t, "ES-1000"))
	assertDec(t, "600.00", f.balance(t, "ES-2000"))
	require.Len(t, records, 3)
	assertDec(t, "900.00", records[0].AvailableBalance)
	assertDec(t, "880.00", records[1].AvailableBalance)
	assertDec(t, "600.00", records[2].AvailableBalance)
}

func TestConservation(t *testing.T) {
	cases := []struct{ amount, fee string }{
		{"0.01", "0"},
		{"100", "20"},
		{"999.99", "0.01"},
		{"1234.56", "7.89"},
		{"0.10", "0.20"},
	}
	for _, tc := range cases {
		t.Run(tc.amount+"+"+tc.fee, func(t *testing.T) {
			f := newFixture(t)
			srcBefore, dstBefore := f.balance(t, "ES-1000"), f.balance(t, "ES-2000")

			_, err := f.svc.Commit(context.Background(), &models.Transfer{
				ID: "t", FromAccount: "ES-1000", ToAccount: "ES-2000",
				Amount: dec(tc.amount), Fee: dec(tc.fee), Username: "john", Date: fixedNow,
			})
			require.NoError(t, err)

			assertDec(t, srcBefore.Sub(dec(tc.amount)).Sub(dec(tc.fee)).String(), f.balance(t, "ES-1000"))
			assertDec(t, dstBefore.Add(dec(tc.amount)).String(), f.balance(t, "ES-2000"))
		})
	}
}

func TestRepeatedTransfersDoNotDrift(t *testing.T) {
	f := newFixture(t, WithFeePolicy(config.FeeFixed, decimal.Zero))
	for i := 0; i < 100; i++ {
		_, err := f.svc.Propose(context.Background(), "s", "john", request("0.10"), false)
		require.NoError(t, err)
	}
	assertDec(t, "990.00", f.balance(t, "ES-1000"))
	assertDec(t, "510.00", f.balance(t, "ES-2000"))
}

func TestAuditCompleteness(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Propose(context.Background(), "s", "john", request("50"), false)
	require.NoError(t, err)

	assert.Len(t, f.transfers(t, "john"), 1)
	assert.Len(t, f.activity(t, "ES-1000"), 2)
	assert.Len(t, f.activity(t, "ES-2000"), 1)
}

func TestAtomicityMissingDestination(t *testing.T) {
	f := newFixture(t)
	req := request("100")
	req.ToAccount = "ES-9999"

	_, err := f.svc.Propose(context.Background(), "s", "john", req, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	assert.ErrorIs(t, err, models.ErrAtomicCommitFailure)

	assertDec(t, "1000.00", f.balance(t, "ES-1000"))
	assert.Empty(t, f.activity(t, "ES-1000"))
	assert.Empty(t, f.transfers(t, "john"))
	assert.Empty(t, f.pub.events)
}

func TestAtomicityMissingSource(t *testing.T) {
	f := newFixture(t)
	req := request("100")
	req.FromAccount = "ES-0000"

	_, err := f.svc.Propose(context.Background(), "s", "john", req, false)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	assertDec(t, "500.00", f.balance(t, "ES-2000"))
	assert.Empty(t, f.transfers(t, "john"))
}

func TestAtomicityStoreFault(t *testing.T) {
	for _, op := range []string{db.OpInsertTransfer, db.OpWriteBalance, db.OpInsertActivity} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			fault := errors.New("connection reset")
			f.ledger.FailOn(op, fault)

			_, err := f.svc.Propose(context.Background(), "s", "john", request("100"), false)
			assert.ErrorIs(t, err, models.ErrAtomicCommitFailure)
			assert.ErrorIs(t, err, fault)

			f.ledger.FailOn(op, nil)
			assertDec(t, "1000.00", f.balance(t, "ES-1000"))
			assertDec(t, "500.00", f.balance(t, "ES-2000"))
			assert.Empty(t, f.activity(t, "ES-1000"))
			assert.Empty(t, f.transfers(t, "john"))
		})
	}
}

func TestProposeWithReviewThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Propose(ctx, "sess-1", "john", request("100.00"), true)
	require.NoError(t, err)
	assert.Equal(t, models.Pending, res.State)
	assertDec(t, "1000.00", f.balance(t, "ES-1000"))
	assertDec(t, "500.00", f.balance(t, "ES-2000"))
	assert.Empty(t, f.transfers(t, "john"))

	held, err := f.holder.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, res.Transfer.ID, held.ID)

	res, err = f.svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.Committed, res.State)
	assertDec(t, "880.00", f.balance(t, "ES-1000"))
	assertDec(t, "600.00", f.balance(t, "ES-2000"))

	held, err = f.holder.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestSecondConfirmFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Propose(ctx, "sess-1", "john", request("100"), true)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "sess-1")
	assert.ErrorIs(t, err, models.ErrNoPendingTransfer)
	assertDec(t, "880.00", f.balance(t, "ES-1000"))
	assert.Len(t, f.transfers(t, "john"), 1)
	assert.Len(t, f.pub.events, 1)
}

func TestConfirmWithoutProposal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Confirm(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrNoPendingTransfer)
}

func TestConfirmIsScopedToSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Propose(ctx, "sess-a", "john", request("100"), true)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "sess-b")
	assert.ErrorIs(t, err, models.ErrNoPendingTransfer)
	assertDec(t, "1000.00", f.balance(t, "ES-1000"))
}

func TestFailedConfirmKeepsPendingTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := request("100")
	req.ToAccount = "ES-9999"

	_, err := f.svc.Propose(ctx, "sess", "john", req, true)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "sess")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	held, err := f.holder.Get(ctx, "sess")
	require.NoError(t, err)
	assert.NotNil(t, held)
}

func TestReplayedPayloadIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Propose(ctx, "sess", "john", request("100"), true)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, "sess")
	require.NoError(t, err)

	require.NoError(t, f.holder.Set(ctx, "sess", res.Transfer))
	_, err = f.svc.Confirm(ctx, "sess")
	assert.ErrorIs(t, err, models.ErrAtomicCommitFailure)
	assertDec(t, "880.00", f.balance(t, "ES-1000"))
}

func TestDescriptionTruncation(t *testing.T) {
	f := newFixture(t)
	req := request("10")
	req.Description = "abcdefghijklmnopqrst"

	res, err := f.svc.Propose(context.Background(), "s", "john", req, false)
	require.NoError(t, err)

	assert.Equal(t, "abcdefghijklmnopqrst", res.Transfer.Description)
	assert.Equal(t, "TRANSFER: abcdefghijkl", res.Activity[0].Description)
	assert.Equal(t, "TRANSFER FEE", res.Activity[1].Description)
	assert.Equal(t, "TRANSFER: abcdefghijkl", res.Activity[2].Description)
}

func TestFeePolicies(t *testing.T) {
	fee := dec("5")

	f := newFixture(t)
	req := request("200")
	req.Fee = &fee
	res, err := f.svc.Propose(context.Background(), "s", "john", req, true)
	require.NoError(t, err)
	assertDec(t, "10", res.Transfer.Fee)

	f = newFixture(t, WithFeePolicy(config.FeeFixed, dec("20")))
	res, err = f.svc.Propose(context.Background(), "s", "john", req, true)
	require.NoError(t, err)
	assertDec(t, "5", res.Transfer.Fee)

	res, err = f.svc.Propose(context.Background(), "s", "john", request("200"), true)
	require.NoError(t, err)
	assertDec(t, "20", res.Transfer.Fee)
}

func TestProposeStampsIdentityAndDate(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Propose(context.Background(), "s", "mary", request("1.005"), true)
	require.NoError(t, err)

	assert.Equal(t, "mary", res.Transfer.Username)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), res.Transfer.Date)
	assertDec(t, "1", res.Transfer.Amount)
	assert.NotEmpty(t, res.Transfer.ID)
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]*models.TransferRequest{
		"zero amount":  request("0"),
		"missing from": {ToAccount: "ES-2000", Amount: dec("1")},
		"missing to":   {FromAccount: "ES-1000", Amount: dec("1")},
		"long description": {
			FromAccount: "ES-1000", ToAccount: "ES-2000", Amount: dec("1"),
			Description: "0123456789012345678901234567890123456789012345678901234567890123456789012345678901",
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Propose(context.Background(), "s", "john", req, false)
			assert.ErrorIs(t, err, models.ErrInvalidTransfer)
		})
	}
	assertDec(t, "1000.00", f.balance(t, "ES-1000"))
}

func TestNoOwnershipCheckByDefault(t *testing.T) {
	f := newFixture(t)

	// mary moves money out of john's account.
	_, err := f.svc.Propose(context.Background(), "s", "mary", request("100"), false)
	require.NoError(t, err)
	assertDec(t, "880.00", f.balance(t, "ES-1000"))
}

func TestNoSufficientFundsCheck(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Propose(context.Background(), "s", "john", request("5000"), false)
	require.NoError(t, err)
	assertDec(t, "-5000.00", f.balance(t, "ES-1000"))
	assertDec(t, "5500.00", f.balance(t, "ES-2000"))
}

func TestOwnershipCheckWhenEnabled(t *testing.T) {
	f := newFixture(t, WithOwnershipCheck(true))
	ctx := context.Background()

	_, err := f.svc.Propose(ctx, "s", "mary", request("100"), false)
	assert.ErrorIs(t, err, models.ErrNotAccountOwner)
	assertDec(t, "1000.00", f.balance(t, "ES-1000"))

	_, err = f.svc.Propose(ctx, "s", "mary", request("100"), true)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, "s")
	assert.ErrorIs(t, err, models.ErrNotAccountOwner)

	_, err = f.svc.Propose(ctx, "s2", "john", request("100"), false)
	assert.NoError(t, err)
}

func TestCommitPublishesEvent(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Propose(context.Background(), "s", "john", request("100"), false)
	require.NoError(t, err)

	require.Len(t, f.pub.events, 1)
	evt := f.pub.events[0]
	assert.Equal(t, res.Transfer.ID, evt.Transfer.ID)
	assert.Len(t, evt.Activity, 3)
	assert.NotEmpty(t, evt.EventID)
}

func TestPublishFailureDoesNotUndoCommit(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	res, err := f.svc.Propose(context.Background(), "s", "john", request("100"), false)
	require.NoError(t, err)
	assert.Equal(t, models.Committed, res.State)
	assertDec(t, "880.00", f.balance(t, "ES-1000"))
}

func TestCommitIgnoresCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Commit(ctx, &models.Transfer{
		ID: "t", FromAccount: "ES-1000", ToAccount: "ES-2000",
		Amount: dec("1"), Fee: decimal.Zero, Username: "john", Date: fixedNow,
	})
	require.NoError(t, err)
	assertDec(t, "999.00", f.balance(t, "ES-1000"))
}

func TestConcurrentCommitsOnMemoryLedger(t *testing.T) {
	f := newFixture(t, WithFeePolicy(config.FeeFixed, decimal.Zero))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Propose(context.Background(), "s", "john", request("1"), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertDec(t, "980.00", f.balance(t, "ES-1000"))
	assertDec(t, "520.00", f.balance(t, "ES-2000"))
}
