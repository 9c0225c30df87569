package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/models"
	"github.com/carmandale/AIMS-sub000/internal/repositories"
)

// CacheInvalidator drops cached analytics for a user. Implemented by the
// analytics service.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// SnapshotEvent is the snapshot-ingested message published by the portfolio
// valuation service.
type SnapshotEvent struct {
	UserID     int64            `json:"user_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Interval   string           `json:"interval"`
	TotalValue decimal.Decimal  `json:"total_value"`
	CashValue  *decimal.Decimal `json:"cash_value,omitempty"`
}

// SnapshotConsumer consumes snapshot-ingested events: each event is persisted
// and then drops the user's cached analytics so the next query recomputes.
type SnapshotConsumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	snapshots   repositories.SnapshotRepository
	invalidator CacheInvalidator
	logger      *logrus.Logger
}

// NewSnapshotConsumer connects and declares the snapshot topology.
func NewSnapshotConsumer(cfg config.RabbitMQConfig, snapshots repositories.SnapshotRepository, invalidator CacheInvalidator, logger *logrus.Logger) (*SnapshotConsumer, error) {
	conn, err := amqp.Dial(cfg.AMQPURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.SnapshotExchange, // name
		"topic",              // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare snapshot exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.SnapshotQueue, // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare snapshot queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,             // queue name
		cfg.SnapshotRoutingKey, // routing key
		cfg.SnapshotExchange,   // exchange
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind snapshot queue: %w", err)
	}

	logger.Infof("Snapshot consumer initialized (queue: %s)", queue.Name)

	return &SnapshotConsumer{
		conn:        conn,
		channel:     channel,
		queueName:   queue.Name,
		snapshots:   snapshots,
		invalidator: invalidator,
		logger:      logger,
	}, nil
}

// Start consumes snapshot events in the background until ctx is cancelled.
func (c *SnapshotConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Snapshot consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Snapshot consumer shutting down")
				return

			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("Snapshot message channel closed")
					return
				}
				c.handle(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *SnapshotConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	var event SnapshotEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Errorf("Failed to unmarshal snapshot event: %v", err)
		msg.Nack(false, false)
		return
	}

	if event.UserID <= 0 {
		c.logger.Warnf("Snapshot event without a user ID, dropping")
		msg.Nack(false, false)
		return
	}

	snapshot := &models.Snapshot{
		UserID:     event.UserID,
		Timestamp:  event.Timestamp,
		Interval:   event.Interval,
		TotalValue: event.TotalValue,
		CashValue:  event.CashValue,
	}
	if snapshot.Interval == "" {
		snapshot.Interval = string(models.FrequencyDaily)
	}

	if err := c.snapshots.Create(ctx, snapshot); err != nil {
		c.logger.Errorf("Failed to persist snapshot for user %d: %v", event.UserID, err)
		msg.Nack(false, true) // Requeue, storage may recover
		return
	}

	if err := c.invalidator.InvalidateUser(ctx, event.UserID); err != nil {
		// Stale cache entries expire on their own TTL, so the snapshot is
		// not requeued over a failed invalidation.
		c.logger.Warnf("Failed to invalidate cache for user %d: %v", event.UserID, err)
	}

	msg.Ack(false)
	c.logger.Debugf("Snapshot ingested for user %d at %s", event.UserID, event.Timestamp.Format(time.RFC3339))
}

// Close closes the consumer channel and connection.
func (c *SnapshotConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.logger.Warnf("Error closing channel: %v", err)
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warnf("Error closing connection: %v", err)
		return err
	}
	c.logger.Info("Snapshot consumer closed")
	return nil
}
