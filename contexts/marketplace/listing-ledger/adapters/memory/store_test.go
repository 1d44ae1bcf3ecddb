package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type recordingPayments struct {
	err         error
	settlements []ports.Settlement
}

func (p *recordingPayments) Deliver(_ context.Context, settlement ports.Settlement) error {
	p.settlements = append(p.settlements, settlement)
	return p.err
}

func createListing(t *testing.T, store *Store, owner string, price uint64) uint64 {
	t.Helper()
	id, _ := store.NewID(context.Background())
	created, err := store.CreateListing(context.Background(), ports.CreateListingInput{
		Owner:     owner,
		Title:     "Lamp",
		Details:   "brass desk lamp",
		Price:     price,
		CreatedAt: time.Now(),
		EventID:   id,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return created.Listing.ID
}

func purchase(store *Store, listingID uint64, buyer string, amount uint64) (ports.PurchaseReceipt, error) {
	id, _ := store.NewID(context.Background())
	return store.PurchaseListing(context.Background(), ports.PurchaseInput{
		ListingID:   listingID,
		Buyer:       buyer,
		AmountSent:  amount,
		PurchasedAt: time.Now(),
		EventID:     id,
	})
}

func TestCreateListingAssignsDenseIDs(t *testing.T) {
	store := NewStore(nil)
	for want := uint64(1); want <= 3; want++ {
		if got := createListing(t, store, "alice", 10); got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
	total, _ := store.CountListings(context.Background())
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if events := store.OutboxEvents(); len(events) != 3 {
		t.Fatalf("expected 3 outbox rows, got %d", len(events))
	}
}

func TestPurchaseMarksSoldBeforeDelivery(t *testing.T) {
	payments := &recordingPayments{}
	store := NewStore(nil, WithPayments(payments))
	listingID := createListing(t, store, "alice", 100)

	if _, err := purchase(store, listingID, "bob", 150); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(payments.settlements) != 1 {
		t.Fatalf("expected one settlement, got %d", len(payments.settlements))
	}
	settlement := payments.settlements[0]
	if !settlement.Listing.Sold || settlement.Listing.Buyer != "bob" {
		t.Fatalf("delivery must observe the listing already sold, got %+v", settlement.Listing)
	}
	if len(settlement.Transfers) != 2 {
		t.Fatalf("expected payout and refund, got %d transfers", len(settlement.Transfers))
	}
}

func TestPurchaseRollsBackOnDeliveryFailure(t *testing.T) {
	cause := errors.New("payee rejected transfer")
	store := NewStore(nil, WithPayments(&recordingPayments{err: cause}))
	listingID := createListing(t, store, "alice", 100)
	outboxBefore := len(store.OutboxEvents())

	_, err := purchase(store, listingID, "bob", 150)
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}

	listing, err := store.GetListing(context.Background(), listingID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Sold || listing.Buyer != "" || listing.SoldAt != nil {
		t.Fatalf("listing must be restored after failed delivery, got %+v", listing)
	}
	if got := len(store.OutboxEvents()); got != outboxBefore {
		t.Fatalf("failed purchase must not write outbox rows, got %d want %d", got, outboxBefore)
	}
}

func TestPurchaseOverflowRollsBackBothTransfers(t *testing.T) {
	store := NewStore(nil)
	listingID := createListing(t, store, "alice", 100)
	store.Book().Seed("alice", math.MaxUint64-10)

	_, err := purchase(store, listingID, "bob", 150)
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	ctx := context.Background()
	if balance, _ := store.GetBalance(ctx, "alice"); balance != math.MaxUint64-10 {
		t.Fatalf("seller balance changed: %d", balance)
	}
	if balance, _ := store.GetBalance(ctx, "bob"); balance != 0 {
		t.Fatalf("refund must not be credited when payout fails, got %d", balance)
	}
	listing, _ := store.GetListing(ctx, listingID)
	if listing.Sold {
		t.Fatalf("listing must remain available")
	}

	// A later purchase that fits still succeeds.
	store.Book().Seed("alice", 0)
	if _, err := purchase(store, listingID, "bob", 100); err != nil {
		t.Fatalf("retry purchase: %v", err)
	}
}

func TestConcurrentPurchasesSellOnce(t *testing.T) {
	store := NewStore(nil)
	listingID := createListing(t, store, "alice", 100)

	const buyers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		sold      int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := purchase(store, listingID, fmt.Sprintf("buyer-%d", i), 100)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domainerrors.ErrAlreadySold):
				sold++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || sold != buyers-1 {
		t.Fatalf("expected exactly one sale, got %d successes and %d already-sold", successes, sold)
	}
	if balance, _ := store.GetBalance(context.Background(), "alice"); balance != 100 {
		t.Fatalf("seller must be paid exactly once, got %d", balance)
	}
}

func TestOutboxFollowsCommitOrder(t *testing.T) {
	store := NewStore(nil)
	first := createListing(t, store, "alice", 10)
	createListing(t, store, "carol", 20)
	if _, err := purchase(store, first, "bob", 10); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	events := store.OutboxEvents()
	wantTypes := []string{ports.EventTypeListingCreated, ports.EventTypeListingCreated, ports.EventTypeListingSold}
	wantKeys := []string{"1", "2", "1"}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, evt := range events {
		if evt.Sequence != uint64(i+1) {
			t.Fatalf("event %d has sequence %d", i, evt.Sequence)
		}
		if evt.EventType != wantTypes[i] || evt.PartitionKey != wantKeys[i] {
			t.Fatalf("event %d: got %s/%s", i, evt.EventType, evt.PartitionKey)
		}
	}

	var envelope ports.EventEnvelope
	if err := json.Unmarshal(events[2].Payload, &envelope); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var data ports.ListingSoldData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Buyer != "bob" || data.ListingID != first {
		t.Fatalf("unexpected sold payload: %+v", data)
	}
}

func TestOutboxMarkSent(t *testing.T) {
	store := NewStore(nil)
	createListing(t, store, "alice", 10)
	createListing(t, store, "alice", 20)
	ctx := context.Background()

	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if err := store.MarkOutboxSent(ctx, pending[0].OutboxID, time.Now()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	pending, _ = store.ListPendingOutbox(ctx, 10)
	if len(pending) != 1 || pending[0].Sequence != 2 {
		t.Fatalf("expected only the second row pending, got %+v", pending)
	}
}

func TestListingsReturnedAsCopies(t *testing.T) {
	store := NewStore(nil)
	listingID := createListing(t, store, "alice", 10)

	items, _ := store.ListListings(context.Background())
	items[0].Title = "changed"

	listing, _ := store.GetListing(context.Background(), listingID)
	if listing.Title != "Lamp" {
		t.Fatalf("store state leaked through ListListings, title=%q", listing.Title)
	}
}

type reentrantPayments struct {
	store      *Store
	soldSeen   bool
	reentryErr error
}

func (p *reentrantPayments) Deliver(ctx context.Context, settlement ports.Settlement) error {
	listing, err := p.store.GetListing(ctx, settlement.Listing.ID)
	if err != nil {
		return err
	}
	p.soldSeen = listing.Sold
	id, _ := p.store.NewID(ctx)
	_, p.reentryErr = p.store.PurchaseListing(ctx, ports.PurchaseInput{
		ListingID:   settlement.Listing.ID,
		Buyer:       "carol",
		AmountSent:  listing.Price,
		PurchasedAt: time.Now(),
		EventID:     id,
	})
	return nil
}

func TestReentrantPaymentsSeeSoldListingWithoutDeadlock(t *testing.T) {
	payments := &reentrantPayments{}
	store := NewStore(nil, WithPayments(payments))
	payments.store = store
	listingID := createListing(t, store, "alice", 100)

	done := make(chan error, 1)
	go func() {
		_, err := purchase(store, listingID, "bob", 100)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("outer purchase: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("re-entrant delivery deadlocked")
	}
	if !payments.soldSeen {
		t.Fatalf("delivery must observe the listing already sold")
	}
	if !errors.Is(payments.reentryErr, domainerrors.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold from nested purchase, got %v", payments.reentryErr)
	}
	listing, _ := store.GetListing(context.Background(), listingID)
	if listing.Buyer != "bob" {
		t.Fatalf("expected bob to own the sale, got %q", listing.Buyer)
	}
}

func TestCreateListingClaimsIdempotencyInSameCommit(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	now := time.Now()
	claim := &ports.IdempotencyClaim{Key: "alice:order-1", RequestHash: "h1", ExpiresAt: now.Add(time.Hour)}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]ports.CreatedListing, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.CreateListing(ctx, ports.CreateListingInput{
				Owner:       "alice",
				Title:       "Lamp",
				Price:       100,
				CreatedAt:   now,
				EventID:     fmt.Sprintf("evt-%d", i),
				Idempotency: claim,
			})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("create %d: %v", i, errs[i])
		}
		if results[i].Listing.ID != 1 {
			t.Fatalf("create %d returned listing %d", i, results[i].Listing.ID)
		}
		if !results[i].Replayed {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected one fresh create, got %d", fresh)
	}
	if total, _ := store.CountListings(ctx); total != 1 {
		t.Fatalf("expected one listing, got %d", total)
	}
	if events := store.OutboxEvents(); len(events) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(events))
	}

	conflicting := *claim
	conflicting.RequestHash = "h2"
	if _, err := store.CreateListing(ctx, ports.CreateListingInput{
		Owner: "alice", Title: "Chair", Price: 5, CreatedAt: now, EventID: "evt-x", Idempotency: &conflicting,
	}); !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected ErrIdempotencyKeyConflict, got %v", err)
	}

	expired := conflicting
	later := now.Add(2 * time.Hour)
	expired.ExpiresAt = later.Add(time.Hour)
	created, err := store.CreateListing(ctx, ports.CreateListingInput{
		Owner: "alice", Title: "Chair", Price: 5, CreatedAt: later, EventID: "evt-y", Idempotency: &expired,
	})
	if err != nil || created.Replayed || created.Listing.ID != 2 {
		t.Fatalf("expected expired key to be claimable again, got %+v err=%v", created, err)
	}
}
