package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"bazaar/contexts/marketplace/listing-ledger/ports"
)

const subscriptionBuffer = 128

var ErrBusClosed = errors.New("event bus closed")

// Bus is the in-process broker used when no external one is configured.
// Publish returns only after every live subscription has queued the event, so
// an outbox row is never acknowledged for an event a consumer did not take.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
	closed bool
	logger *slog.Logger
}

type subscription struct {
	group  string
	events chan ports.EventEnvelope
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) end() {
	s.once.Do(func() { close(s.done) })
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		topics: make(map[string][]*subscription),
		logger: logger,
	}
}

// Publish blocks while a subscriber's queue is full. A cancelled ctx aborts
// the call with an error so the caller keeps the event for a later attempt.
// Subscribers that already took the event may see it again on that retry.
func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := slices.Clone(b.topics[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- event:
		case <-sub.done:
		case <-ctx.Done():
			if b.logger != nil {
				b.logger.Warn("bus publish interrupted by slow subscriber",
					"event", "bus_publish_blocked",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", sub.group,
					"event_id", event.EventID,
				)
			}
			return fmt.Errorf("publish %s to %s/%s: %w", event.EventID, topic, sub.group, ctx.Err())
		}
	}

	if b.logger != nil {
		b.logger.Debug("event published",
			"event", "bus_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"subscribers", len(subs),
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	return nil
}

// Subscribe starts a consumer goroutine that lives until ctx is cancelled or
// the bus is closed. Handler errors are logged; the bus does not redeliver.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	sub := &subscription{
		group:  consumerGroup,
		events: make(chan ports.EventEnvelope, subscriptionBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()

	go b.consume(ctx, topic, sub, handler)
	return nil
}

func (b *Bus) consume(
	ctx context.Context,
	topic string,
	sub *subscription,
	handler func(context.Context, ports.EventEnvelope) error,
) {
	defer b.unsubscribe(topic, sub)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case event := <-sub.events:
			if err := handler(ctx, event); err != nil && b.logger != nil {
				b.logger.Error("consumer handler failed",
					"event", "bus_consume_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", sub.group,
					"event_id", event.EventID,
					"event_type", event.EventType,
					"error", err.Error(),
				)
			}
		}
	}
}

// Close stops every consumer and rejects later publishes.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for topic, subs := range b.topics {
		for _, sub := range subs {
			sub.end()
		}
		delete(b.topics, topic)
	}
	return nil
}

func (b *Bus) unsubscribe(topic string, target *subscription) {
	target.end()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = slices.DeleteFunc(b.topics[topic], func(sub *subscription) bool {
		return sub == target
	})
}
