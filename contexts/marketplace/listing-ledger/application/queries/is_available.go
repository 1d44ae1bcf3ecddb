package queries

import (
	"context"
	"errors"
	"log/slog"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type IsAvailableQuery struct {
	ListingID uint64
}

type IsAvailableResult struct {
	Available bool
}

type IsAvailableUseCase struct {
	Listings ports.ListingRepository
	Logger   *slog.Logger
}

// Execute folds existence into availability: unknown ids are simply not
// available. Only storage failures are returned as errors.
func (u IsAvailableUseCase) Execute(ctx context.Context, query IsAvailableQuery) (IsAvailableResult, error) {
	listing, err := u.Listings.GetListing(ctx, query.ListingID)
	if errors.Is(err, domainerrors.ErrListingNotFound) {
		return IsAvailableResult{Available: false}, nil
	}
	if err != nil {
		application.ResolveLogger(u.Logger).Error("availability lookup failed",
			"event", "is_available_failed",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"listing_id", query.ListingID,
			"error", err.Error(),
		)
		return IsAvailableResult{}, err
	}
	return IsAvailableResult{Available: !listing.Sold}, nil
}
