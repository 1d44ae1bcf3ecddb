package ports

import (
	"context"
	"time"

	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	contractsv1 "bazaar/contracts/events/v1"
)

// CreateListingInput carries a validated create request plus the metadata of
// the listing.created event written with it.
type CreateListingInput struct {
	Owner     string
	Title     string
	Details   string
	Price     uint64
	CreatedAt time.Time
	EventID   string
	// Idempotency, when set, is claimed in the same commit as the listing.
	Idempotency *IdempotencyClaim
}

// IdempotencyClaim reserves a caller-scoped key for one create request.
// A live record with the same hash replays its listing; a different hash is
// ErrIdempotencyKeyConflict. Records past ExpiresAt are replaced.
type IdempotencyClaim struct {
	Key         string
	RequestHash string
	ExpiresAt   time.Time
}

// CreatedListing is the outcome of CreateListing. Replayed is set when an
// idempotency claim matched an earlier request and nothing was written.
type CreatedListing struct {
	Listing  entities.Listing
	Replayed bool
}

// PurchaseInput carries a purchase request plus the metadata of the
// listing.sold event written with it.
type PurchaseInput struct {
	ListingID   uint64
	Buyer       string
	AmountSent  uint64
	PurchasedAt time.Time
	EventID     string
}

// PurchaseReceipt describes a committed purchase.
type PurchaseReceipt struct {
	Listing      entities.Listing
	Transfers    []entities.Transfer
	SellerPaid   uint64
	RefundIssued uint64
}

// ListingRepository owns the listing table and its counter. Every mutating
// method is a single commit: state, fund delivery and outbox rows are applied
// together or not at all.
type ListingRepository interface {
	CreateListing(ctx context.Context, input CreateListingInput) (CreatedListing, error)
	// PurchaseListing evaluates the purchase guards, marks the listing sold,
	// then delivers the settlement transfers. A delivery failure undoes the
	// sold flag and returns an error matching ErrTransferFailed.
	PurchaseListing(ctx context.Context, input PurchaseInput) (PurchaseReceipt, error)
	GetListing(ctx context.Context, listingID uint64) (entities.Listing, error)
	ListListings(ctx context.Context) ([]entities.Listing, error)
	CountListings(ctx context.Context) (uint64, error)
}

// Settlement is the set of transfers produced by one purchase. Listing is the
// state at delivery time and is always already marked sold.
type Settlement struct {
	Listing   entities.Listing
	Buyer     string
	Transfers []entities.Transfer
}

// Payments delivers settlement funds. Deliver must apply every transfer or
// none before returning. Calls back into the repository must reuse the ctx
// passed to Deliver; they then run inside the purchase commit and see the
// listing already sold.
type Payments interface {
	Deliver(ctx context.Context, settlement Settlement) error
}

// BalanceReader exposes funds credited to an identity by settlements.
type BalanceReader interface {
	GetBalance(ctx context.Context, account string) (uint64, error)
}

// IdempotencyRecord captures dedupe metadata for listing creation.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	ListingID   uint64
	ExpiresAt   time.Time
}

// IdempotencyStore is the read side of create idempotency. Records are
// written by ListingRepository.CreateListing inside the listing commit.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
}

// Clock allows deterministic testing of timestamps and TTLs.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the ledger outbox.
type OutboxMessage struct {
	OutboxID     string
	Sequence     uint64
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
// ListPendingOutbox returns rows in commit order.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventEnvelope reuses the canonical envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// Metrics receives ledger outcome observations.
type Metrics interface {
	ListingCreated()
	PurchaseCompleted(sellerPaid uint64, refundIssued uint64)
	PurchaseRejected(reason string)
	OutboxPublished(count int)
}
