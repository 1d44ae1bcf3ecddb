package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/domain/services"
	"bazaar/contexts/marketplace/listing-ledger/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"

	listingCounterName = "listings"
)

var errAmountOutOfRange = errors.New("amount exceeds storable range")

type Repository struct {
	db       *gorm.DB
	payments func(tx *gorm.DB) ports.Payments
	logger   *slog.Logger
}

type Option func(*Repository)

// WithPayments routes settlement delivery to an external rail instead of the
// in-database balance book. The rail is invoked inside the purchase
// transaction; its failure rolls that transaction back.
func WithPayments(payments ports.Payments) Option {
	return func(r *Repository) {
		if payments != nil {
			r.payments = func(*gorm.DB) ports.Payments { return payments }
		}
	}
}

func NewRepository(db *gorm.DB, logger *slog.Logger, opts ...Option) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		db:       db,
		payments: func(tx *gorm.DB) ports.Payments { return balanceBook{tx: tx} },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type deliveryKey struct{}

type deliveryTx struct {
	repo *Repository
	tx   *gorm.DB
}

// session returns the open purchase transaction when ctx was handed to
// Payments.Deliver by this repository. Re-entrant calls then run inside that
// commit instead of waiting on the counter lock it holds.
func (r *Repository) session(ctx context.Context) *gorm.DB {
	if held, ok := ctx.Value(deliveryKey{}).(deliveryTx); ok && held.repo == r {
		return held.tx.Session(&gorm.Session{NewDB: true, Context: ctx})
	}
	return r.db.WithContext(ctx)
}

// Migrate creates the ledger tables and the listing counter row.
func (r *Repository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&counterModel{},
		&listingModel{},
		&transferModel{},
		&balanceModel{},
		&idempotencyModel{},
		&outboxModel{},
	); err != nil {
		return fmt.Errorf("migrate listing ledger schema: %w", err)
	}
	return db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&counterModel{Name: listingCounterName, Value: 0}).
		Error
}

func (r *Repository) CreateListing(ctx context.Context, input ports.CreateListingInput) (ports.CreatedListing, error) {
	if input.Price > math.MaxInt64 {
		return ports.CreatedListing{}, domainerrors.ErrInvalidInput
	}

	var created ports.CreatedListing
	err := r.session(ctx).Transaction(func(tx *gorm.DB) error {
		counter, err := lockCounter(tx)
		if err != nil {
			return err
		}

		// The counter lock also serializes idempotency claims, so two
		// requests with one key cannot both miss here.
		if claim := input.Idempotency; claim != nil {
			replay, found, err := findClaim(tx, *claim, input.CreatedAt)
			if err != nil {
				return err
			}
			if found {
				created = ports.CreatedListing{Listing: replay, Replayed: true}
				return nil
			}
		}

		listing, err := entities.NewListing(
			uint64(counter.Value)+1,
			input.Owner,
			input.Title,
			input.Details,
			input.Price,
			input.CreatedAt,
		)
		if err != nil {
			return err
		}

		row := listingModelFromEntity(listing)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		if err := tx.Model(&counterModel{}).
			Where("name = ?", listingCounterName).
			Update("value", counter.Value+1).
			Error; err != nil {
			return err
		}
		if claim := input.Idempotency; claim != nil {
			record := idempotencyModelFromClaim(*claim, listing.ID)
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}

		envelope, err := ports.ListingCreatedEnvelope(input.EventID, listing, input.CreatedAt)
		if err != nil {
			return err
		}
		if err := insertOutbox(tx, envelope); err != nil {
			return err
		}
		created = ports.CreatedListing{Listing: listing}
		return nil
	})
	if err != nil {
		return ports.CreatedListing{}, err
	}

	r.logger.Debug("listing persisted",
		"event", "postgres_create_listing",
		"module", "marketplace/listing-ledger",
		"layer", "adapter",
		"listing_id", created.Listing.ID,
		"replayed", created.Replayed,
	)
	return created, nil
}

func (r *Repository) PurchaseListing(ctx context.Context, input ports.PurchaseInput) (ports.PurchaseReceipt, error) {
	if input.Buyer == "" {
		return ports.PurchaseReceipt{}, domainerrors.ErrInvalidInput
	}

	var receipt ports.PurchaseReceipt
	err := r.session(ctx).Transaction(func(tx *gorm.DB) error {
		// The counter lock serializes every mutation, so outbox sequence
		// order equals commit order.
		if _, err := lockCounter(tx); err != nil {
			return err
		}

		listing, found, err := lockListing(tx, input.ListingID)
		if err != nil {
			return err
		}
		if err := services.EvaluatePurchase(listing, found, input.Buyer, input.AmountSent); err != nil {
			return err
		}
		// Balances are bigint; checked after the guards so an unknown or
		// sold listing still reports NotFound or AlreadySold.
		if input.AmountSent > math.MaxInt64 {
			return domainerrors.ErrInvalidInput
		}
		if err := listing.MarkSold(input.Buyer, input.PurchasedAt); err != nil {
			return err
		}

		// Sold flag is written before any funds move.
		update := tx.Model(&listingModel{}).
			Where("listing_id = ? AND sold = ?", int64(listing.ID), false).
			Updates(map[string]any{
				"sold":    true,
				"buyer":   listing.Buyer,
				"sold_at": listing.SoldAt,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected != 1 {
			return domainerrors.ErrAlreadySold
		}

		transfers := services.PlanSettlement(listing, input.Buyer, input.AmountSent, uuid.NewString)
		deliveryCtx := context.WithValue(ctx, deliveryKey{}, deliveryTx{repo: r, tx: tx})
		if err := r.payments(tx).Deliver(deliveryCtx, ports.Settlement{
			Listing:   listing.Clone(),
			Buyer:     input.Buyer,
			Transfers: transfers,
		}); err != nil {
			return fmt.Errorf("%w: %w", domainerrors.ErrTransferFailed, err)
		}
		for _, transfer := range transfers {
			row := transferModelFromEntity(transfer, input.PurchasedAt)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		envelope, err := ports.ListingSoldEnvelope(input.EventID, listing, input.PurchasedAt)
		if err != nil {
			return err
		}
		if err := insertOutbox(tx, envelope); err != nil {
			return err
		}

		receipt = ports.PurchaseReceipt{
			Listing:    listing,
			Transfers:  transfers,
			SellerPaid: listing.Price,
		}
		if input.AmountSent > listing.Price {
			receipt.RefundIssued = input.AmountSent - listing.Price
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrTransferFailed) {
			r.logger.Error("settlement delivery failed, purchase rolled back",
				"event", "postgres_purchase_rolled_back",
				"module", "marketplace/listing-ledger",
				"layer", "adapter",
				"listing_id", input.ListingID,
				"buyer", input.Buyer,
				"error", err.Error(),
			)
		}
		return ports.PurchaseReceipt{}, err
	}
	return receipt, nil
}

func (r *Repository) GetListing(ctx context.Context, listingID uint64) (entities.Listing, error) {
	if listingID == 0 || listingID > math.MaxInt64 {
		return entities.Listing{}, domainerrors.ErrListingNotFound
	}
	var row listingModel
	err := r.session(ctx).
		Where("listing_id = ?", int64(listingID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, domainerrors.ErrListingNotFound
		}
		return entities.Listing{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListListings(ctx context.Context) ([]entities.Listing, error) {
	var rows []listingModel
	if err := r.session(ctx).
		Order("listing_id ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.Listing, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) CountListings(ctx context.Context) (uint64, error) {
	var counter counterModel
	err := r.session(ctx).
		Where("name = ?", listingCounterName).
		First(&counter).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(counter.Value), nil
}

func (r *Repository) GetBalance(ctx context.Context, account string) (uint64, error) {
	var row balanceModel
	err := r.session(ctx).
		Where("account = ?", account).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(row.Balance), nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.session(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	if row.expired(now) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return row.toPort(), true, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

// balanceBook credits settlement transfers inside the purchase transaction.
type balanceBook struct {
	tx *gorm.DB
}

func (b balanceBook) Deliver(_ context.Context, settlement ports.Settlement) error {
	for _, transfer := range settlement.Transfers {
		if transfer.Account == "" {
			return errors.New("transfer recipient is empty")
		}
		if transfer.Amount > math.MaxInt64 {
			return errAmountOutOfRange
		}
		if err := b.tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account"}},
				DoNothing: true,
			}).
			Create(&balanceModel{Account: transfer.Account, Balance: 0}).
			Error; err != nil {
			return err
		}

		var current balanceModel
		if err := b.tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account = ?", transfer.Account).
			First(&current).
			Error; err != nil {
			return err
		}
		if int64(transfer.Amount) > math.MaxInt64-current.Balance {
			return fmt.Errorf("recipient balance would overflow: account %s", transfer.Account)
		}
		if err := b.tx.Model(&balanceModel{}).
			Where("account = ?", transfer.Account).
			Update("balance", current.Balance+int64(transfer.Amount)).
			Error; err != nil {
			return err
		}
	}
	return nil
}

// findClaim resolves an idempotency claim under the counter lock. A matching
// live record yields its listing; an expired one is removed so the key can be
// claimed again.
func findClaim(tx *gorm.DB, claim ports.IdempotencyClaim, now time.Time) (entities.Listing, bool, error) {
	var record idempotencyModel
	err := tx.Where("key = ?", claim.Key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, false, nil
		}
		return entities.Listing{}, false, err
	}
	if record.expired(now) {
		if err := tx.Where("key = ?", claim.Key).Delete(&idempotencyModel{}).Error; err != nil {
			return entities.Listing{}, false, err
		}
		return entities.Listing{}, false, nil
	}
	if record.RequestHash != claim.RequestHash {
		return entities.Listing{}, false, domainerrors.ErrIdempotencyKeyConflict
	}

	var row listingModel
	if err := tx.Where("listing_id = ?", record.ListingID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, false, domainerrors.ErrRepositoryInvariantBroke
		}
		return entities.Listing{}, false, err
	}
	return row.toEntity(), true, nil
}

func lockCounter(tx *gorm.DB) (counterModel, error) {
	var counter counterModel
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", listingCounterName).
		First(&counter).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return counterModel{}, fmt.Errorf("%w: listing counter row missing", domainerrors.ErrRepositoryInvariantBroke)
		}
		return counterModel{}, err
	}
	return counter, nil
}

func lockListing(tx *gorm.DB, listingID uint64) (entities.Listing, bool, error) {
	if listingID == 0 || listingID > math.MaxInt64 {
		return entities.Listing{}, false, nil
	}
	var row listingModel
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("listing_id = ?", int64(listingID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, false, nil
		}
		return entities.Listing{}, false, err
	}
	return row.toEntity(), true, nil
}

func insertOutbox(tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
