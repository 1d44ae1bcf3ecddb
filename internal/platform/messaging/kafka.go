package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bazaar/contexts/marketplace/listing-ledger/ports"

	skafka "github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of kafka.Writer the publisher needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes envelopes keyed by partition key, so events for one
// listing land on one partition in relay order.
type KafkaPublisher struct {
	writer KafkaWriter
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, logger *slog.Logger) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaPublisherWithWriter(w, logger)
}

func NewKafkaPublisherWithWriter(w KafkaWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal kafka event %s: %w", event.EventID, err)
	}
	msg := skafka.Message{
		Topic: topic,
		Key:   []byte(event.PartitionKey),
		Value: body,
		Headers: []skafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("kafka write failed",
			"event", "kafka_publish_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	p.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
