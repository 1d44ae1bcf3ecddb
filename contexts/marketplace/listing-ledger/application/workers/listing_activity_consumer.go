package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

const defaultActivityConsumerGroup = "listing-ledger-activity-cg"

// ListingActivityConsumer turns relayed ledger events into an activity log.
// It runs wherever the publisher can also be subscribed to, which today means
// the in-process bus.
type ListingActivityConsumer struct {
	Subscriber    ports.EventSubscriber
	Topic         string
	ConsumerGroup string
	Logger        *slog.Logger
}

func (c ListingActivityConsumer) Start(ctx context.Context) error {
	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	group := c.ConsumerGroup
	if group == "" {
		group = defaultActivityConsumerGroup
	}
	return c.Subscriber.Subscribe(ctx, topic, group, c.handle)
}

func (c ListingActivityConsumer) handle(_ context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	switch event.EventType {
	case ports.EventTypeListingCreated:
		var data ports.ListingCreatedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("decode %s %s: %w", event.EventType, event.EventID, err)
		}
		logger.Info("listing activity: listed",
			"event", "listing_activity_created",
			"module", "marketplace/listing-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"listing_id", data.ListingID,
			"owner", data.Owner,
			"price", data.Price,
		)
	case ports.EventTypeListingSold:
		var data ports.ListingSoldData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("decode %s %s: %w", event.EventType, event.EventID, err)
		}
		logger.Info("listing activity: sold",
			"event", "listing_activity_sold",
			"module", "marketplace/listing-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"listing_id", data.ListingID,
			"owner", data.Owner,
			"buyer", data.Buyer,
			"price", data.Price,
		)
	default:
		logger.Debug("listing activity ignored unknown event",
			"event", "listing_activity_ignored",
			"module", "marketplace/listing-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	return nil
}
