package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abkawan/banking-transfers/internal/config"
	"github.com/abkawan/banking-transfers/internal/db"
	"github.com/abkawan/banking-transfers/internal/metrics"
	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/abkawan/banking-transfers/internal/money"
	"github.com/abkawan/banking-transfers/internal/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	transferPrefix = "TRANSFER: "
	feeDescription = "TRANSFER FEE"
)

// EventPublisher receives every committed transfer.
type EventPublisher interface {
	PublishTransferCommitted(ctx context.Context, evt *models.TransferCommitted) error
}

// TransferService drives the propose -> confirm protocol and the atomic
// ledger update behind it.
type TransferService struct {
	ledger    db.Ledger
	holder    session.Holder
	publisher EventPublisher
	logger    *zap.Logger

	feeMode          config.FeeMode
	defaultFee       decimal.Decimal
	enforceOwnership bool
	now              func() time.Time
}

type TransferOption func(*TransferService)

func WithPublisher(p EventPublisher) TransferOption {
	return func(s *TransferService) { s.publisher = p }
}

func WithLogger(l *zap.Logger) TransferOption {
	return func(s *TransferService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFeePolicy sets how the request fee turns into the charged fee and the
// rate used when a request carries none.
func WithFeePolicy(mode config.FeeMode, defaultFee decimal.Decimal) TransferOption {
	return func(s *TransferService) {
		s.feeMode = mode
		s.defaultFee = defaultFee
	}
}

// WithOwnershipCheck rejects transfers whose source account is not owned
// by the acting user. Off by default.
func WithOwnershipCheck(enabled bool) TransferOption {
	return func(s *TransferService) { s.enforceOwnership = enabled }
}

func WithClock(now func() time.Time) TransferOption {
	return func(s *TransferService) { s.now = now }
}

// creates a new TransferService
func NewTransferService(ledger db.Ledger, holder session.Holder, opts ...TransferOption) *TransferService {
	s := &TransferService{
		ledger:     ledger,
		holder:     holder,
		logger:     zap.NewNop(),
		feeMode:    config.FeePercent,
		defaultFee: decimal.NewFromInt(20),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose validates the request and either parks the transfer for the
// session (requiresReview) or commits it straight away.
func (s *TransferService) Propose(ctx context.Context, sessionID, username string, req *models.TransferRequest, requiresReview bool) (*models.TransferResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	t := s.buildTransfer(username, req)
	log := s.logger.With(
		zap.String("transfer_id", t.ID),
		zap.String("from_account", t.FromAccount),
		zap.String("to_account", t.ToAccount),
		zap.String("session_id", sessionID),
	)

	if requiresReview {
		if err := s.holder.Set(ctx, sessionID, t); err != nil {
			return nil, fmt.Errorf("failed to hold transfer: %w", err)
		}
		metrics.TransfersProposed.WithLabelValues(string(models.Pending)).Inc()
		log.Info("transfer held for confirmation", zap.String("state", string(models.Pending)))
		return &models.TransferResult{State: models.Pending, Transfer: t}, nil
	}

	metrics.TransfersProposed.WithLabelValues(string(models.Committed)).Inc()
	records, err := s.commitAuthorized(ctx, t)
	if err != nil {
		return nil, err
	}
	return &models.TransferResult{State: models.Committed, Transfer: t, Activity: records}, nil
}

// Confirm commits the transfer held for the session and then clears it.
// A failed commit leaves the pending transfer in place.
func (s *TransferService) Confirm(ctx context.Context, sessionID string) (*models.TransferResult, error) {
	t, err := s.holder.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending transfer: %w", err)
	}
	if t == nil {
		return nil, models.ErrNoPendingTransfer
	}

	records, err := s.commitAuthorized(ctx, t)
	if err != nil {
		return nil, err
	}

	if err := s.holder.Clear(ctx, sessionID); err != nil {
		// A replay of the same payload fails on the transfer id.
		s.logger.Warn("failed to clear pending transfer",
			zap.String("session_id", sessionID),
			zap.String("transfer_id", t.ID),
			zap.Error(err))
	}
	return &models.TransferResult{State: models.Committed, Transfer: t, Activity: records}, nil
}

func (s *TransferService) commitAuthorized(ctx context.Context, t *models.Transfer) ([]models.ActivityRecord, error) {
	if s.enforceOwnership {
		if err := s.checkOwnership(ctx, t); err != nil {
			return nil, err
		}
	}
	return s.Commit(ctx, t)
}

func (s *TransferService) checkOwnership(ctx context.Context, t *models.Transfer) error {
	owned, err := s.ledger.CashAccountsByUsername(ctx, t.Username)
	if err != nil {
		return fmt.Errorf("failed to load accounts of %s: %w", t.Username, err)
	}
	for _, ca := range owned {
		if ca.Number == t.FromAccount {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrNotAccountOwner, t.FromAccount)
}

// Commit applies t to the ledger in one atomic unit. Cancelling ctx does
// not interrupt a unit that has started.
func (s *TransferService) Commit(ctx context.Context, t *models.Transfer) ([]models.ActivityRecord, error) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(
		zap.String("transfer_id", t.ID),
		zap.String("from_account", t.FromAccount),
		zap.String("to_account", t.ToAccount),
	)

	start := time.Now()
	var records []models.ActivityRecord
	err := s.ledger.Atomic(ctx, func(tx db.LedgerTx) error {
		var err error
		records, err = applyTransfer(ctx, tx, t)
		return err
	})
	metrics.CommitDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "store"
		if errors.Is(err, models.ErrAccountNotFound) {
			reason = "account_not_found"
		}
		metrics.CommitFailures.WithLabelValues(reason).Inc()
		log.Error("transfer rolled back", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrAtomicCommitFailure, err)
	}

	metrics.TransfersCommitted.Inc()
	log.Info("transfer committed",
		zap.String("state", string(models.Committed)),
		zap.String("amount", t.Amount.StringFixed(2)),
		zap.String("fee", t.Fee.StringFixed(2)))

	s.publish(ctx, t, records, log)
	return records, nil
}

func (s *TransferService) publish(ctx context.Context, t *models.Transfer, records []models.ActivityRecord, log *zap.Logger) {
	if s.publisher == nil {
		return
	}
	evt := &models.TransferCommitted{
		EventID:     uuid.NewString(),
		Transfer:    *t,
		Activity:    records,
		CommittedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishTransferCommitted(ctx, evt); err != nil {
		metrics.EventPublishErrors.Inc()
		log.Warn("failed to publish transfer event", zap.Error(err))
	}
}

// applyTransfer is the body of the atomic unit: audit row, source debit,
// fee debit, destination credit and their activity records. The first
// source record carries the balance after the principal but before the fee.
func applyTransfer(ctx context.Context, tx db.LedgerTx, t *models.Transfer) ([]models.ActivityRecord, error) {
	balances := balanceBook{tx: tx}
	activity := activityLog{tx: tx}

	if err := tx.InsertTransfer(ctx, t); err != nil {
		return nil, err
	}

	sourceBalance, err := balances.current(ctx, t.FromAccount)
	if err != nil {
		return nil, err
	}
	newSourceBalance := money.Round2(sourceBalance.Sub(t.Amount.Add(t.Fee)))
	afterPrincipal := money.Round2(sourceBalance.Sub(t.Amount))
	afterFee := money.Round2(sourceBalance.Sub(t.Amount).Sub(t.Fee))

	sourceID, err := balances.identifier(ctx, t.FromAccount)
	if err != nil {
		return nil, err
	}
	if err := balances.write(ctx, sourceID, newSourceBalance); err != nil {
		return nil, err
	}

	desc := money.TruncateDescription(t.Description)
	amount := money.Round2(t.Amount)

	debit, err := activity.record(ctx, t.FromAccount, transferPrefix+desc, amount.Neg(), afterPrincipal, t.Date)
	if err != nil {
		return nil, err
	}
	fee, err := activity.record(ctx, t.FromAccount, feeDescription, money.Round2(t.Fee).Neg(), afterFee, t.Date)
	if err != nil {
		return nil, err
	}

	destinationBalance, err := balances.current(ctx, t.ToAccount)
	if err != nil {
		return nil, err
	}
	destinationID, err := balances.identifier(ctx, t.ToAccount)
	if err != nil {
		return nil, err
	}
	newDestinationBalance := money.Round2(destinationBalance.Add(t.Amount))
	if err := balances.write(ctx, destinationID, newDestinationBalance); err != nil {
		return nil, err
	}

	credit, err := activity.record(ctx, t.ToAccount, transferPrefix+desc, amount, newDestinationBalance, t.Date)
	if err != nil {
		return nil, err
	}

	return []models.ActivityRecord{debit, fee, credit}, nil
}

// buildTransfer turns a validated request into the transfer row. The fee
// in the request is a percentage of the amount or a flat fee, per feeMode.
func (s *TransferService) buildTransfer(username string, req *models.TransferRequest) *models.Transfer {
	amount := money.Round2(req.Amount)

	rate := s.defaultFee
	if req.Fee != nil {
		rate = *req.Fee
	}
	fee := money.Round2(rate)
	if s.feeMode == config.FeePercent {
		fee = money.PercentOf(amount, rate)
	}

	return &models.Transfer{
		ID:          uuid.NewString(),
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Description: req.Description,
		Amount:      amount,
		Fee:         fee,
		Username:    username,
		Date:        s.now().UTC().Truncate(24 * time.Hour),
	}
}
