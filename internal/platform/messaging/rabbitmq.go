package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"bazaar/contexts/marketplace/listing-ledger/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitChannel is the subset of *amqp.Channel the publisher needs.
type RabbitChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes envelopes to a durable topic exchange named after
// the relay topic, routed by event type.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  RabbitChannel
	declared map[string]bool
	logger   *slog.Logger
}

func NewRabbitPublisher(url string, logger *slog.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	p := NewRabbitPublisherWithChannel(ch, logger)
	p.conn = conn
	return p, nil
}

func NewRabbitPublisherWithChannel(ch RabbitChannel, logger *slog.Logger) *RabbitPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RabbitPublisher{
		channel:  ch,
		declared: make(map[string]bool),
		logger:   logger,
	}
}

// Publish is called from the single relay goroutine; it is not safe for
// concurrent use.
func (p *RabbitPublisher) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if !p.declared[topic] {
		if err := p.channel.ExchangeDeclare(topic, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", topic, err)
		}
		p.declared[topic] = true
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal rabbitmq event %s: %w", event.EventID, err)
	}
	err = p.channel.PublishWithContext(
		ctx,
		topic,
		event.EventType,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    event.OccurredAt,
			Type:         event.EventType,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq publish failed",
			"event", "rabbitmq_publish_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"exchange", topic,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
