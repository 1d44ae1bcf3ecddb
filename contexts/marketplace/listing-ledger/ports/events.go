package ports

import (
	"encoding/json"
	"strconv"
	"time"

	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
)

const (
	EventTypeListingCreated = "listing.created"
	EventTypeListingSold    = "listing.sold"

	SourceService = "listing-ledger"
)

type ListingCreatedData struct {
	ListingID uint64 `json:"listing_id"`
	Title     string `json:"title"`
	Details   string `json:"details"`
	Price     uint64 `json:"price"`
	Owner     string `json:"owner"`
}

type ListingSoldData struct {
	ListingID uint64 `json:"listing_id"`
	Title     string `json:"title"`
	Price     uint64 `json:"price"`
	Owner     string `json:"owner"`
	Buyer     string `json:"buyer"`
}

// ListingCreatedEnvelope builds the outbox payload for a new listing.
func ListingCreatedEnvelope(eventID string, listing entities.Listing, occurredAt time.Time) (EventEnvelope, error) {
	return buildEnvelope(eventID, EventTypeListingCreated, listing.ID, occurredAt, ListingCreatedData{
		ListingID: listing.ID,
		Title:     listing.Title,
		Details:   listing.Details,
		Price:     listing.Price,
		Owner:     listing.Owner,
	})
}

// ListingSoldEnvelope builds the outbox payload for a committed purchase.
func ListingSoldEnvelope(eventID string, listing entities.Listing, occurredAt time.Time) (EventEnvelope, error) {
	return buildEnvelope(eventID, EventTypeListingSold, listing.ID, occurredAt, ListingSoldData{
		ListingID: listing.ID,
		Title:     listing.Title,
		Price:     listing.Price,
		Owner:     listing.Owner,
		Buyer:     listing.Buyer,
	})
}

func buildEnvelope(eventID string, eventType string, listingID uint64, occurredAt time.Time, data any) (EventEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    SourceService,
		SchemaVersion:    1,
		PartitionKeyPath: "listing_id",
		PartitionKey:     strconv.FormatUint(listingID, 10),
		Data:             raw,
	}, nil
}
