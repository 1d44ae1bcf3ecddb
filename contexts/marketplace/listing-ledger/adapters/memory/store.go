package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/domain/services"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

// Store is an in-memory adapter implementing the ledger ports for local runtime
// and tests. A single RWMutex makes it the sequential authority over the
// listing table: writers are linearized, readers see only committed state.
type Store struct {
	mu          sync.RWMutex
	listings    []entities.Listing
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]ports.OutboxMessage
	outboxOrder []string
	outboxSent  map[string]time.Time
	book        *Book
	payments    ports.Payments
	sequence    uint64
	logger      *slog.Logger
}

type Option func(*Store)

// WithPayments replaces the built-in balance book as the settlement target.
func WithPayments(payments ports.Payments) Option {
	return func(s *Store) {
		if payments != nil {
			s.payments = payments
		}
	}
}

func NewStore(logger *slog.Logger, opts ...Option) *Store {
	book := NewBook()
	s := &Store{
		listings:    make([]entities.Listing, 0),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]ports.OutboxMessage),
		outboxOrder: make([]string, 0),
		outboxSent:  make(map[string]time.Time),
		book:        book,
		payments:    book,
		logger:      application.ResolveLogger(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type lockHeldKey struct{}

// lock takes the write lock unless ctx was handed to Payments.Deliver by this
// store, in which case the caller already runs inside the critical section.
func (s *Store) lock(ctx context.Context) func() {
	if s.insideDelivery(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock(ctx context.Context) func() {
	if s.insideDelivery(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) insideDelivery(ctx context.Context) bool {
	held, _ := ctx.Value(lockHeldKey{}).(*Store)
	return held == s
}

func (s *Store) CreateListing(ctx context.Context, input ports.CreateListingInput) (ports.CreatedListing, error) {
	defer s.lock(ctx)()

	if claim := input.Idempotency; claim != nil {
		if record, ok := s.liveRecord(claim.Key, input.CreatedAt); ok {
			if record.RequestHash != claim.RequestHash {
				return ports.CreatedListing{}, domainerrors.ErrIdempotencyKeyConflict
			}
			listing, found := s.lookup(record.ListingID)
			if !found {
				return ports.CreatedListing{}, domainerrors.ErrRepositoryInvariantBroke
			}
			return ports.CreatedListing{Listing: listing.Clone(), Replayed: true}, nil
		}
	}

	listing, err := entities.NewListing(
		uint64(len(s.listings))+1,
		input.Owner,
		input.Title,
		input.Details,
		input.Price,
		input.CreatedAt,
	)
	if err != nil {
		return ports.CreatedListing{}, err
	}
	envelope, err := ports.ListingCreatedEnvelope(input.EventID, listing, input.CreatedAt)
	if err != nil {
		return ports.CreatedListing{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return ports.CreatedListing{}, err
	}

	s.listings = append(s.listings, listing)
	if claim := input.Idempotency; claim != nil {
		s.idempotency[claim.Key] = ports.IdempotencyRecord{
			Key:         claim.Key,
			RequestHash: claim.RequestHash,
			ListingID:   listing.ID,
			ExpiresAt:   claim.ExpiresAt,
		}
	}
	s.appendOutbox(envelope, payload)

	s.logger.Info("listing persisted in memory store",
		"event", "memory_create_listing",
		"module", "marketplace/listing-ledger",
		"layer", "adapter",
		"listing_id", listing.ID,
		"owner", listing.Owner,
		"outbox_event_id", envelope.EventID,
	)
	return ports.CreatedListing{Listing: listing.Clone()}, nil
}

func (s *Store) PurchaseListing(ctx context.Context, input ports.PurchaseInput) (ports.PurchaseReceipt, error) {
	defer s.lock(ctx)()

	if input.Buyer == "" {
		return ports.PurchaseReceipt{}, domainerrors.ErrInvalidInput
	}
	listing, found := s.lookup(input.ListingID)
	if err := services.EvaluatePurchase(listing, found, input.Buyer, input.AmountSent); err != nil {
		return ports.PurchaseReceipt{}, err
	}

	index := input.ListingID - 1
	previous := listing.Clone()
	if err := listing.MarkSold(input.Buyer, input.PurchasedAt); err != nil {
		return ports.PurchaseReceipt{}, err
	}
	// The sold flag is committed to the table before any funds move.
	s.listings[index] = listing

	transfers := services.PlanSettlement(listing, input.Buyer, input.AmountSent, s.nextTransferID)
	envelope, err := ports.ListingSoldEnvelope(input.EventID, listing, input.PurchasedAt)
	if err != nil {
		s.listings[index] = previous
		return ports.PurchaseReceipt{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		s.listings[index] = previous
		return ports.PurchaseReceipt{}, err
	}

	deliveryCtx := context.WithValue(ctx, lockHeldKey{}, s)
	if err := s.payments.Deliver(deliveryCtx, ports.Settlement{
		Listing:   listing.Clone(),
		Buyer:     input.Buyer,
		Transfers: transfers,
	}); err != nil {
		s.listings[index] = previous
		s.logger.Error("settlement delivery failed, purchase rolled back",
			"event", "memory_purchase_rolled_back",
			"module", "marketplace/listing-ledger",
			"layer", "adapter",
			"listing_id", listing.ID,
			"buyer", input.Buyer,
			"error", err.Error(),
		)
		return ports.PurchaseReceipt{}, fmt.Errorf("%w: %w", domainerrors.ErrTransferFailed, err)
	}

	s.appendOutbox(envelope, payload)

	receipt := ports.PurchaseReceipt{
		Listing:    listing.Clone(),
		Transfers:  transfers,
		SellerPaid: listing.Price,
	}
	if input.AmountSent > listing.Price {
		receipt.RefundIssued = input.AmountSent - listing.Price
	}

	s.logger.Info("purchase committed in memory store",
		"event", "memory_purchase_listing",
		"module", "marketplace/listing-ledger",
		"layer", "adapter",
		"listing_id", listing.ID,
		"buyer", input.Buyer,
		"seller_paid", receipt.SellerPaid,
		"refund_issued", receipt.RefundIssued,
		"outbox_event_id", envelope.EventID,
	)
	return receipt, nil
}

func (s *Store) GetListing(ctx context.Context, listingID uint64) (entities.Listing, error) {
	defer s.rlock(ctx)()

	listing, found := s.lookup(listingID)
	if !found {
		return entities.Listing{}, domainerrors.ErrListingNotFound
	}
	return listing.Clone(), nil
}

func (s *Store) ListListings(ctx context.Context) ([]entities.Listing, error) {
	defer s.rlock(ctx)()

	items := make([]entities.Listing, 0, len(s.listings))
	for _, listing := range s.listings {
		items = append(items, listing.Clone())
	}
	return items, nil
}

func (s *Store) CountListings(ctx context.Context) (uint64, error) {
	defer s.rlock(ctx)()
	return uint64(len(s.listings)), nil
}

func (s *Store) GetBalance(ctx context.Context, account string) (uint64, error) {
	return s.book.GetBalance(ctx, account)
}

// Book exposes the built-in balance book.
func (s *Store) Book() *Book {
	return s.book
}

func (s *Store) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	defer s.rlock(ctx)()

	record, ok := s.liveRecord(key, now)
	return record, ok, nil
}

// liveRecord ignores expired keys; CreateListing overwrites them on reuse.
func (s *Store) liveRecord(key string, now time.Time) (ports.IdempotencyRecord, bool) {
	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false
	}
	if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
		return ports.IdempotencyRecord{}, false
	}
	return record, true
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("ledger-%d", value), nil
}

// OutboxEvents returns every outbox row in commit order, sent or not.
func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ports.OutboxMessage, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		if evt, ok := s.outbox[id]; ok {
			events = append(events, evt)
		}
	}
	return events
}

func (s *Store) lookup(listingID uint64) (entities.Listing, bool) {
	if listingID == 0 || listingID > uint64(len(s.listings)) {
		return entities.Listing{}, false
	}
	return s.listings[listingID-1], true
}

func (s *Store) nextTransferID() string {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("transfer-%d", value)
}

// appendOutbox must be called with the write lock held.
func (s *Store) appendOutbox(envelope ports.EventEnvelope, payload []byte) {
	s.outbox[envelope.EventID] = ports.OutboxMessage{
		OutboxID:     envelope.EventID,
		Sequence:     uint64(len(s.outboxOrder)) + 1,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		CreatedAt:    envelope.OccurredAt,
	}
	s.outboxOrder = append(s.outboxOrder, envelope.EventID)
}
