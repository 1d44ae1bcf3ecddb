package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/ports"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Tests in this file need a disposable database; they drop the ledger tables.
const testDSNEnv = "LEDGER_TEST_POSTGRES_DSN"

func newDBRepository(t *testing.T, opts ...Option) (*Repository, *gorm.DB) {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.Migrator().DropTable(
		&counterModel{},
		&listingModel{},
		&transferModel{},
		&balanceModel{},
		&idempotencyModel{},
		&outboxModel{},
	); err != nil {
		t.Fatalf("drop tables: %v", err)
	}
	repo := NewRepository(db, nil, opts...)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo, db
}

func seedListing(t *testing.T, repo *Repository, owner string, price uint64) uint64 {
	t.Helper()
	created, err := repo.CreateListing(context.Background(), ports.CreateListingInput{
		Owner:     owner,
		Title:     "Lamp",
		Details:   "brass",
		Price:     price,
		CreatedAt: time.Now().UTC(),
		EventID:   fmt.Sprintf("evt-create-%s-%d", owner, time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return created.Listing.ID
}

func purchaseInput(listingID uint64, buyer string, amount uint64) ports.PurchaseInput {
	return ports.PurchaseInput{
		ListingID:   listingID,
		Buyer:       buyer,
		AmountSent:  amount,
		PurchasedAt: time.Now().UTC(),
		EventID:     fmt.Sprintf("evt-buy-%d-%s-%d", listingID, buyer, time.Now().UnixNano()),
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

type failingRail struct{}

func (failingRail) Deliver(context.Context, ports.Settlement) error {
	return errors.New("rail offline")
}

type reentrantRail struct {
	repo       *Repository
	soldSeen   bool
	reentryErr error
}

func (r *reentrantRail) Deliver(ctx context.Context, settlement ports.Settlement) error {
	listing, err := r.repo.GetListing(ctx, settlement.Listing.ID)
	if err != nil {
		return err
	}
	r.soldSeen = listing.Sold
	_, r.reentryErr = r.repo.PurchaseListing(ctx, purchaseInput(settlement.Listing.ID, "carol", listing.Price))
	return nil
}

func TestDBPurchaseCommitsSaleTransfersAndOutbox(t *testing.T) {
	repo, db := newDBRepository(t)
	ctx := context.Background()
	id := seedListing(t, repo, "alice", 100)

	receipt, err := repo.PurchaseListing(ctx, purchaseInput(id, "bob", 150))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if receipt.SellerPaid != 100 || receipt.RefundIssued != 50 || len(receipt.Transfers) != 2 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	listing, err := repo.GetListing(ctx, id)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if !listing.Sold || listing.Buyer != "bob" || listing.SoldAt == nil {
		t.Fatalf("expected sold listing, got %+v", listing)
	}
	if balance, _ := repo.GetBalance(ctx, "alice"); balance != 100 {
		t.Fatalf("seller balance: got %d want 100", balance)
	}
	if balance, _ := repo.GetBalance(ctx, "bob"); balance != 50 {
		t.Fatalf("buyer refund: got %d want 50", balance)
	}
	if n := countRows(t, db, &transferModel{}); n != 2 {
		t.Fatalf("expected 2 transfer rows, got %d", n)
	}

	pending, err := repo.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(pending) != 2 || pending[0].EventType != ports.EventTypeListingCreated || pending[1].EventType != ports.EventTypeListingSold {
		t.Fatalf("unexpected outbox: %+v", pending)
	}

	if _, err := repo.PurchaseListing(ctx, purchaseInput(id, "carol", 100)); !errors.Is(err, domainerrors.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold, got %v", err)
	}
}

func TestDBOversizedAmountKeepsGuardOrder(t *testing.T) {
	repo, _ := newDBRepository(t)
	ctx := context.Background()
	id := seedListing(t, repo, "alice", 100)

	if _, err := repo.PurchaseListing(ctx, purchaseInput(999, "bob", math.MaxUint64)); !errors.Is(err, domainerrors.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound for unknown id, got %v", err)
	}
	if _, err := repo.PurchaseListing(ctx, purchaseInput(id, "alice", math.MaxUint64)); !errors.Is(err, domainerrors.ErrSelfPurchase) {
		t.Fatalf("expected ErrSelfPurchase, got %v", err)
	}
	if _, err := repo.PurchaseListing(ctx, purchaseInput(id, "bob", math.MaxUint64)); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unstorable amount, got %v", err)
	}
	if available, _ := repo.GetListing(ctx, id); available.Sold {
		t.Fatalf("rejected purchase must not sell the listing")
	}
}

func TestDBDeliveryFailureRollsBackEverything(t *testing.T) {
	repo, db := newDBRepository(t, WithPayments(failingRail{}))
	ctx := context.Background()
	id := seedListing(t, repo, "alice", 100)

	_, err := repo.PurchaseListing(ctx, purchaseInput(id, "bob", 150))
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	listing, _ := repo.GetListing(ctx, id)
	if listing.Sold || listing.Buyer != "" {
		t.Fatalf("sold flag must roll back, got %+v", listing)
	}
	if n := countRows(t, db, &transferModel{}); n != 0 {
		t.Fatalf("expected no transfer rows, got %d", n)
	}
	if n := countRows(t, db, &outboxModel{}); n != 1 {
		t.Fatalf("expected only the create event in the outbox, got %d", n)
	}
}

func TestDBBalanceOverflowRollsBackBothTransfers(t *testing.T) {
	repo, db := newDBRepository(t)
	ctx := context.Background()
	id := seedListing(t, repo, "alice", 100)

	if err := db.Create(&balanceModel{Account: "bob", Balance: math.MaxInt64 - 10}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	_, err := repo.PurchaseListing(ctx, purchaseInput(id, "bob", 150))
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on refund overflow, got %v", err)
	}
	if balance, _ := repo.GetBalance(ctx, "alice"); balance != 0 {
		t.Fatalf("seller credit must roll back, got %d", balance)
	}
	if balance, _ := repo.GetBalance(ctx, "bob"); balance != math.MaxInt64-10 {
		t.Fatalf("buyer balance changed: %d", balance)
	}
	if listing, _ := repo.GetListing(ctx, id); listing.Sold {
		t.Fatalf("listing must stay available after rollback")
	}
}

func TestDBConcurrentCreatesWithOneKeyWriteOneListing(t *testing.T) {
	repo, _ := newDBRepository(t)
	ctx := context.Background()
	claim := &ports.IdempotencyClaim{
		Key:         "alice:order-1",
		RequestHash: "hash-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]ports.CreatedListing, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.CreateListing(ctx, ports.CreateListingInput{
				Owner:       "alice",
				Title:       "Lamp",
				Price:       100,
				CreatedAt:   time.Now().UTC(),
				EventID:     fmt.Sprintf("evt-idem-%d", i),
				Idempotency: claim,
			})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < workers; i++ {
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
		t.Fatalf("expected exactly one non-replayed create, got %d", fresh)
	}
	if total, _ := repo.CountListings(ctx); total != 1 {
		t.Fatalf("expected one listing, got %d", total)
	}

	conflicting := *claim
	conflicting.RequestHash = "hash-2"
	_, err := repo.CreateListing(ctx, ports.CreateListingInput{
		Owner: "alice", Title: "Chair", Price: 5, CreatedAt: time.Now().UTC(), EventID: "evt-idem-x", Idempotency: &conflicting,
	})
	if !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected ErrIdempotencyKeyConflict, got %v", err)
	}
}

func TestDBReentrantPaymentsSeeSoldListing(t *testing.T) {
	rail := &reentrantRail{}
	repo, _ := newDBRepository(t, WithPayments(rail))
	rail.repo = repo
	ctx := context.Background()
	id := seedListing(t, repo, "alice", 100)

	done := make(chan error, 1)
	go func() {
		_, err := repo.PurchaseListing(ctx, purchaseInput(id, "bob", 100))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("outer purchase: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("re-entrant delivery deadlocked")
	}
	if !rail.soldSeen {
		t.Fatalf("delivery must observe the listing already sold")
	}
	if !errors.Is(rail.reentryErr, domainerrors.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold from nested purchase, got %v", rail.reentryErr)
	}
}
