package queries

import (
	"context"
	"log/slog"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type GetListingQuery struct {
	ListingID uint64
}

type GetListingResult struct {
	Listing entities.Listing
}

type GetListingUseCase struct {
	Listings ports.ListingRepository
	Logger   *slog.Logger
}

func (u GetListingUseCase) Execute(ctx context.Context, query GetListingQuery) (GetListingResult, error) {
	logger := application.ResolveLogger(u.Logger)

	listing, err := u.Listings.GetListing(ctx, query.ListingID)
	if err != nil {
		logger.Warn("get listing failed",
			"event", "get_listing_failed",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"listing_id", query.ListingID,
			"error", err.Error(),
		)
		return GetListingResult{}, err
	}

	logger.Debug("get listing completed",
		"event", "get_listing_completed",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"listing_id", query.ListingID,
	)
	return GetListingResult{Listing: listing}, nil
}
