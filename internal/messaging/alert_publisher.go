package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/models"
)

// AlertMessage is the drawdown alert envelope published for downstream
// notification services.
type AlertMessage struct {
	MessageID string                `json:"message_id"`
	UserID    int64                 `json:"user_id"`
	Alert     models.TriggeredAlert `json:"alert"`
	Source    string                `json:"source"`
	Timestamp time.Time             `json:"timestamp"`
}

// AlertPublisher publishes triggered drawdown alerts to the alerts exchange.
type AlertPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logrus.Logger
}

// NewAlertPublisher connects and declares the alerts exchange.
func NewAlertPublisher(cfg config.RabbitMQConfig, logger *logrus.Logger) (*AlertPublisher, error) {
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
		cfg.AlertExchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare alert exchange: %w", err)
	}

	logger.Infof("Alert publisher initialized (exchange: %s, routing_key: %s)", cfg.AlertExchange, cfg.AlertRoutingKey)

	return &AlertPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.AlertExchange,
		routingKey: cfg.AlertRoutingKey,
		logger:     logger,
	}, nil
}

// Publish emits one triggered alert for a user. The routing key is suffixed
// with the severity so consumers can bind to, say, only emergencies.
func (p *AlertPublisher) Publish(userID int64, alert models.TriggeredAlert) error {
	message := AlertMessage{
		MessageID: uuid.New().String(),
		UserID:    userID,
		Alert:     alert,
		Source:    "analytics-api",
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,                       // exchange
		p.routingKey+"."+alert.Severity,  // routing key
		false,                            // mandatory
		false,                            // immediate
		amqp.Publishing{
			MessageId:    message.MessageID,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    message.Timestamp,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Debugf("Published %s alert for user %d (drawdown %s%%)", alert.Severity, userID, alert.Value)
	return nil
}

// Close closes the publisher channel and connection.
func (p *AlertPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.logger.Warnf("Error closing channel: %v", err)
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Warnf("Error closing connection: %v", err)
		return err
	}
	p.logger.Info("Alert publisher closed")
	return nil
}
