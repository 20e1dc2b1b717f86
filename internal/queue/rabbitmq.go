package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	// queue for committed transfers
	TransferCommittedQueue = "transfers.committed"
)

// handles RabbitMQ operations
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *zap.Logger

	// amqp channels do not support concurrent publishers
	publishMu sync.Mutex
}

func NewRabbitMQ(uri string, logger *zap.Logger) (*RabbitMQ, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		TransferCommittedQueue, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
		queue:   q,
		logger:  logger,
	}, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// PublishTransferCommitted publishes a committed transfer as persistent JSON.
func (r *RabbitMQ) PublishTransferCommitted(ctx context.Context, evt *models.TransferCommitted) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer event: %w", err)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	err = r.channel.Publish(
		"",                     // exchange
		TransferCommittedQueue, // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    evt.EventID,
			Timestamp:    evt.CommittedAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Delivery is one consumed event. Ack or Nack it once handled.
type Delivery struct {
	Event models.TransferCommitted
	msg   amqp.Delivery
}

func (d Delivery) Ack() error { return d.msg.Ack(false) }

// Nack returns the message to the queue when requeue is true.
func (d Delivery) Nack(requeue bool) error { return d.msg.Nack(false, requeue) }

// ConsumeTransferCommitted streams events until ctx is done.
// Undecodable messages are rejected without requeue.
func (r *RabbitMQ) ConsumeTransferCommitted(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := r.channel.Consume(
		TransferCommittedQueue, // queue
		"",                     // consumer
		false,                  // auto-ack
		false,                  // exclusive
		false,                  // no-local
		false,                  // no-wait
		nil,                    // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var evt models.TransferCommitted
				if err := json.Unmarshal(msg.Body, &evt); err != nil {
					r.logger.Error("failed to unmarshal transfer event", zap.Error(err))
					msg.Reject(false)
					continue
				}

				select {
				case out <- Delivery{Event: evt, msg: msg}:
				case <-ctx.Done():
					msg.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}
