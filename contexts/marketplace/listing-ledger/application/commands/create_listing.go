package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type CreateListingCommand struct {
	Caller         string
	Title          string
	Details        string
	Price          uint64
	IdempotencyKey string
}

type CreateListingResult struct {
	Listing  entities.Listing
	Replayed bool
}

type CreateListingUseCase struct {
	Listings       ports.ListingRepository
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	IdempotencyTTL time.Duration
	Metrics        ports.Metrics
	Logger         *slog.Logger
}

// Execute runs listing creation in this order:
// 1) input validation
// 2) idempotency lookup/replay when a key is supplied
// 3) atomic listing + idempotency claim + outbox persistence.
//
// The lookup in step 2 only short-circuits plain retries. Concurrent requests
// with one key are settled by the claim written in step 3.
func (u CreateListingUseCase) Execute(ctx context.Context, cmd CreateListingCommand) (CreateListingResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if cmd.Caller == "" || cmd.Title == "" || cmd.Price == 0 {
		logger.Warn("create listing rejected",
			"event", "create_listing_invalid_input",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"caller", cmd.Caller,
			"price", cmd.Price,
		)
		return CreateListingResult{}, domainerrors.ErrInvalidInput
	}

	now := u.now()
	idempotencyKey := scopeIdempotencyKey(cmd.Caller, cmd.IdempotencyKey)
	requestHash := hashRequest(cmd)

	logger.Info("create listing started",
		"event", "create_listing_started",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"caller", cmd.Caller,
		"price", cmd.Price,
	)

	if idempotencyKey != "" && u.Idempotency != nil {
		record, found, err := u.Idempotency.Get(ctx, idempotencyKey, now)
		if err != nil {
			logger.Error("idempotency get failed",
				"event", "create_listing_idempotency_get_failed",
				"module", "marketplace/listing-ledger",
				"layer", "application",
				"caller", cmd.Caller,
				"error", err.Error(),
			)
			return CreateListingResult{}, err
		}
		if found {
			if record.RequestHash != requestHash {
				u.logConflict(logger, cmd.Caller)
				return CreateListingResult{}, domainerrors.ErrIdempotencyKeyConflict
			}
			listing, err := u.Listings.GetListing(ctx, record.ListingID)
			if err != nil {
				return CreateListingResult{}, err
			}
			u.logReplay(logger, listing.ID)
			return CreateListingResult{Listing: listing, Replayed: true}, nil
		}
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CreateListingResult{}, err
	}

	input := ports.CreateListingInput{
		Owner:     cmd.Caller,
		Title:     cmd.Title,
		Details:   cmd.Details,
		Price:     cmd.Price,
		CreatedAt: now,
		EventID:   eventID,
	}
	if idempotencyKey != "" {
		input.Idempotency = &ports.IdempotencyClaim{
			Key:         idempotencyKey,
			RequestHash: requestHash,
			ExpiresAt:   now.Add(u.idempotencyTTL()),
		}
	}

	created, err := u.Listings.CreateListing(ctx, input)
	if err != nil {
		if errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
			u.logConflict(logger, cmd.Caller)
			return CreateListingResult{}, err
		}
		logger.Error("create listing failed on write transaction",
			"event", "create_listing_write_failed",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"caller", cmd.Caller,
			"error", err.Error(),
		)
		return CreateListingResult{}, err
	}
	if created.Replayed {
		u.logReplay(logger, created.Listing.ID)
		return CreateListingResult{Listing: created.Listing, Replayed: true}, nil
	}

	listing := created.Listing
	application.ResolveMetrics(u.Metrics).ListingCreated()
	logger.Info("listing created",
		"event", "listing_created",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"listing_id", listing.ID,
		"owner", listing.Owner,
		"price", listing.Price,
	)

	return CreateListingResult{Listing: listing}, nil
}

func (u CreateListingUseCase) logConflict(logger *slog.Logger, caller string) {
	logger.Warn("idempotency key conflict",
		"event", "create_listing_idempotency_conflict",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"caller", caller,
	)
}

func (u CreateListingUseCase) logReplay(logger *slog.Logger, listingID uint64) {
	logger.Info("create listing replayed from idempotency",
		"event", "create_listing_replayed",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"listing_id", listingID,
	)
}

func (u CreateListingUseCase) idempotencyTTL() time.Duration {
	if u.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return u.IdempotencyTTL
}

func (u CreateListingUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

// Keys are namespaced by caller so two callers never share a record.
func scopeIdempotencyKey(caller string, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return caller + ":" + key
}

func hashRequest(cmd CreateListingCommand) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", cmd.Caller, cmd.Title, cmd.Details, cmd.Price)))
	return hex.EncodeToString(sum[:])
}
