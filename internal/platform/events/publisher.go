package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/medassist/api/internal/platform/config"
)

// Publisher is the outbound side of the event fabric.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, envelope Envelope) error
}

// AMQPPublisher publishes persistent messages onto durable topic exchanges.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the platform exchanges.
func NewAMQPPublisher(cfg config.AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := DeclareTopology(channel); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: channel}, nil
}

// DeclareTopology declares the durable exchanges shared by publisher and
// consumer sides. Declaration is idempotent on the broker.
func DeclareTopology(channel *amqp.Channel) error {
	for _, exchange := range []string{ExchangeOrders, ExchangeDeliveries, ExchangeInventory} {
		if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("events: declare exchange %q: %w", exchange, err)
		}
	}
	return nil
}

// Publish frames and sends the envelope with persistent delivery mode.
func (p *AMQPPublisher) Publish(ctx context.Context, exchange, key string, envelope Envelope) error {
	body, err := envelope.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.MessageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s/%s: %w", exchange, key, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
