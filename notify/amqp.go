package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/warp/aid-engine/engine"
)

// =============================================================================
// AMQP CHANNEL - External message delivery via broker
// =============================================================================

// Message is the wire format published to the broker. The message sender
// (mailer/SMS worker) consumes these; the portal never waits on delivery.
type Message struct {
	Type          string    `json:"type"`
	ApplicationID int64     `json:"application_id"`
	CitizenID     string    `json:"citizen_id"`
	Program       string    `json:"program"`
	Amount        string    `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
}

// AMQP publishes decision events to a durable direct exchange.
type AMQP struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

// NewAMQP connects to the broker and declares the exchange and queue.
func NewAMQP(url, exchangeName, queueName string) (*AMQP, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &AMQP{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := c.setup(); err != nil {
		c.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return c, nil
}

func (c *AMQP) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *AMQP) Name() string { return "amqp" }

// Send publishes the event as a persistent JSON message. The dispatcher
// bounds ctx; a slow broker fails this channel only.
func (c *AMQP) Send(ctx context.Context, event engine.Event) error {
	msg := Message{
		Type:          string(event.Type),
		ApplicationID: int64(event.ApplicationID),
		CitizenID:     string(event.CitizenID),
		Program:       event.Program,
		Reason:        event.Reason,
		Body:          MessageFor(event),
		Timestamp:     event.At,
	}
	if event.Amount != nil {
		msg.Amount = event.Amount.String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (c *AMQP) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
