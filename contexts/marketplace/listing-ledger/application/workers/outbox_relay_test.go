package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bazaar/contexts/marketplace/listing-ledger/adapters/memory"
	"bazaar/contexts/marketplace/listing-ledger/application/workers"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type capturePublisher struct {
	topics   []string
	events   []ports.EventEnvelope
	failFrom int
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failFrom > 0 && len(p.events)+1 >= p.failFrom {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type publishedCounter struct {
	total int
}

func (c *publishedCounter) ListingCreated() {}
func (c *publishedCounter) PurchaseCompleted(uint64, uint64) {}
func (c *publishedCounter) PurchaseRejected(string) {}
func (c *publishedCounter) OutboxPublished(count int) { c.total += count }

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	ctx := context.Background()
	for i, owner := range []string{"alice", "carol"} {
		if _, err := store.CreateListing(ctx, ports.CreateListingInput{
			Owner:     owner,
			Title:     "Lamp",
			Price:     uint64(10 * (i + 1)),
			CreatedAt: time.Now(),
			EventID:   "evt-create-" + owner,
		}); err != nil {
			t.Fatalf("create listing: %v", err)
		}
	}
	if _, err := store.PurchaseListing(ctx, ports.PurchaseInput{
		ListingID:   1,
		Buyer:       "bob",
		AmountSent:  10,
		PurchasedAt: time.Now(),
		EventID:     "evt-sale-1",
	}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	return store
}

func TestOutboxRelayPublishesInCommitOrder(t *testing.T) {
	store := seedStore(t)
	publisher := &capturePublisher{}
	counter := &publishedCounter{}
	relay := workers.OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     store,
		Metrics:   counter,
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	wantIDs := []string{"evt-create-alice", "evt-create-carol", "evt-sale-1"}
	if len(publisher.events) != len(wantIDs) {
		t.Fatalf("expected %d events, got %d", len(wantIDs), len(publisher.events))
	}
	for i, evt := range publisher.events {
		if evt.EventID != wantIDs[i] {
			t.Fatalf("event %d: got %s want %s", i, evt.EventID, wantIDs[i])
		}
		if publisher.topics[i] != workers.DefaultTopic {
			t.Fatalf("expected default topic, got %s", publisher.topics[i])
		}
	}
	if publisher.events[2].EventType != ports.EventTypeListingSold {
		t.Fatalf("expected sold event last, got %s", publisher.events[2].EventType)
	}
	if counter.total != 3 {
		t.Fatalf("expected 3 published, got %d", counter.total)
	}

	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d pending", len(pending))
	}
}

func TestOutboxRelayStopsAtFirstFailure(t *testing.T) {
	store := seedStore(t)
	publisher := &capturePublisher{failFrom: 2}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Topic: "custom.topic"}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish error")
	}
	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 2 || pending[0].OutboxID != "evt-create-carol" {
		t.Fatalf("expected the failed event and its successors to stay pending, got %+v", pending)
	}

	publisher.failFrom = 0
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(publisher.events) != 3 || publisher.events[1].EventID != "evt-create-carol" {
		t.Fatalf("retry must resume in order, got %+v", publisher.events)
	}
	if publisher.topics[0] != "custom.topic" {
		t.Fatalf("expected configured topic, got %s", publisher.topics[0])
	}
}
