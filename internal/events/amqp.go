package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder copies every bus event to a durable RabbitMQ queue for
// external consumers (CRM sync, analytics).
type AMQPForwarder struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
	logger  *zerolog.Logger
	timeout time.Duration
	mu      sync.Mutex
}

// NewAMQPForwarder dials the broker and declares the target queue.
func NewAMQPForwarder(url, queue string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	logger.Info().Str("queue", queue).Msg("RabbitMQ forwarder connected")
	return &AMQPForwarder{conn: conn, channel: ch, queue: queue, logger: logger, timeout: 5 * time.Second}, nil
}

// Handle is an EventHandler; publish failures are logged and returned.
func (f *AMQPForwarder) Handle(event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	err := f.channel.PublishWithContext(ctx, "", f.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type,
		Timestamp:    event.CreatedAt.UTC(),
		Body:         event.Payload,
	})
	if err != nil {
		f.logger.Error().Err(err).Str("event", event.Type).Msg("rabbitmq publish failed")
		return fmt.Errorf("rabbitmq publish %s: %w", event.Type, err)
	}
	return nil
}

func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.channel != nil {
		if err := f.channel.Close(); err != nil {
			f.logger.Warn().Err(err).Msg("error closing rabbitmq channel")
		}
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
