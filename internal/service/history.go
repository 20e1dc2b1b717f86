package service

import (
	"context"
	"fmt"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/abkawan/banking-transfers/internal/queue"
	"go.uber.org/zap"
)

// HistoryWriter stores committed transfers. Saving the same transfer twice
// must leave one entry.
type HistoryWriter interface {
	SaveTransfer(ctx context.Context, evt *models.TransferCommitted) error
}

// EventSource yields committed-transfer deliveries.
type EventSource interface {
	ConsumeTransferCommitted(ctx context.Context) (<-chan queue.Delivery, error)
}

// HistoryProjector copies committed transfers from the queue into the
// history store.
type HistoryProjector struct {
	source EventSource
	store  HistoryWriter
	logger *zap.Logger
}

func NewHistoryProjector(source EventSource, store HistoryWriter, logger *zap.Logger) *HistoryProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryProjector{source: source, store: store, logger: logger}
}

// Project stores one event.
func (p *HistoryProjector) Project(ctx context.Context, evt *models.TransferCommitted) error {
	if evt.Transfer.ID == "" {
		return fmt.Errorf("transfer event %s has no transfer id", evt.EventID)
	}
	if err := p.store.SaveTransfer(ctx, evt); err != nil {
		return fmt.Errorf("failed to project transfer %s: %w", evt.Transfer.ID, err)
	}
	return nil
}

// Start consumes events in a goroutine until ctx is done. Events that fail
// to store are requeued.
func (p *HistoryProjector) Start(ctx context.Context) error {
	deliveries, err := p.source.ConsumeTransferCommitted(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume transfer events: %w", err)
	}

	go p.run(ctx, deliveries)
	return nil
}

type ackable interface {
	Ack() error
	Nack(requeue bool) error
}

func (p *HistoryProjector) run(ctx context.Context, deliveries <-chan queue.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handle(ctx, &d.Event, d)
		}
	}
}

func (p *HistoryProjector) handle(ctx context.Context, evt *models.TransferCommitted, msg ackable) {
	log := p.logger.With(zap.String("transfer_id", evt.Transfer.ID), zap.String("event_id", evt.EventID))

	if err := p.Project(ctx, evt); err != nil {
		log.Error("failed to project transfer", zap.Error(err))
		if nackErr := msg.Nack(evt.Transfer.ID != ""); nackErr != nil {
			log.Warn("failed to nack transfer event", zap.Error(nackErr))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		log.Warn("failed to ack transfer event", zap.Error(err))
		return
	}
	log.Debug("transfer projected")
}
