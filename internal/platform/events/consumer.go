package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one decoded event. A returned error triggers redelivery
// with an incremented retry counter, up to MaxAttempts.
type Handler func(ctx context.Context, envelope Envelope) error

// Binding ties a queue to an exchange and routing key with its handler.
type Binding struct {
	Exchange string
	Key      string
	Queue    string
	Handle   Handler
}

// Consumer pulls events off bound queues with manual acknowledgement.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
	backoff func(attempt int) time.Duration
}

// NewConsumer dials the broker, declares topology and prepares a channel with
// a bounded prefetch.
func NewConsumer(uri string, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := channel.Qos(10, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: set prefetch: %w", err)
	}
	if err := DeclareTopology(channel); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		conn:    conn,
		channel: channel,
		logger:  logger,
		backoff: func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}, nil
}

// Run binds all queues and consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context, publisher Publisher, bindings []Binding) error {
	for _, binding := range bindings {
		if _, err := c.channel.QueueDeclare(binding.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("events: declare queue %q: %w", binding.Queue, err)
		}
		if err := c.channel.QueueBind(binding.Queue, binding.Key, binding.Exchange, false, nil); err != nil {
			return fmt.Errorf("events: bind queue %q: %w", binding.Queue, err)
		}
		deliveries, err := c.channel.Consume(binding.Queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("events: consume queue %q: %w", binding.Queue, err)
		}
		go c.loop(ctx, publisher, binding, deliveries)
	}

	<-ctx.Done()
	return nil
}

func (c *Consumer) loop(ctx context.Context, publisher Publisher, binding Binding, deliveries <-chan amqp.Delivery) {
	logger := c.logger.With(
		zap.String("exchange", binding.Exchange),
		zap.String("routing_key", binding.Key),
		zap.String("queue", binding.Queue),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.dispatch(ctx, publisher, binding, logger, delivery)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, publisher Publisher, binding Binding, logger *zap.Logger, delivery amqp.Delivery) {
	envelope, err := DecodeEnvelope(delivery.Body)
	if err != nil {
		// Malformed frames can never succeed; drop them.
		logger.Warn("dropping undecodable event", zap.Error(err))
		_ = delivery.Ack(false)
		return
	}

	eventLogger := logger.With(
		zap.String("message_id", envelope.MessageID),
		zap.String("event_type", envelope.Type),
		zap.Int("retries", envelope.Retries),
	)

	handleErr := binding.Handle(ctx, envelope)
	if handleErr == nil {
		_ = delivery.Ack(false)
		return
	}
	eventLogger.Warn("event handler failed", zap.Error(handleErr))

	attempt := envelope.Retries + 1
	if attempt >= MaxAttempts {
		eventLogger.Error("event exhausted retries, dropping")
		_ = delivery.Ack(false)
		return
	}

	// Linear backoff before re-publishing the bumped frame. The original
	// delivery is acked only after the retry copy is safely back on the bus.
	select {
	case <-ctx.Done():
		_ = delivery.Nack(false, true)
		return
	case <-time.After(c.backoff(attempt)):
	}

	envelope.Retries = attempt
	if err := publisher.Publish(ctx, binding.Exchange, binding.Key, envelope); err != nil {
		eventLogger.Error("event retry publish failed", zap.Error(err))
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
