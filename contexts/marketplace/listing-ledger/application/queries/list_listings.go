package queries

import (
	"context"
	"log/slog"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type ListListingsResult struct {
	Items []entities.Listing
}

type ListListingsUseCase struct {
	Listings ports.ListingRepository
	Logger   *slog.Logger
}

// Execute returns a snapshot of every listing, sold ones included, in
// ascending id order.
func (u ListListingsUseCase) Execute(ctx context.Context) (ListListingsResult, error) {
	logger := application.ResolveLogger(u.Logger)

	items, err := u.Listings.ListListings(ctx)
	if err != nil {
		logger.Error("list listings failed",
			"event", "list_listings_failed",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"error", err.Error(),
		)
		return ListListingsResult{}, err
	}
	if items == nil {
		items = make([]entities.Listing, 0)
	}

	logger.Debug("list listings completed",
		"event", "list_listings_completed",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"count", len(items),
	)
	return ListListingsResult{Items: items}, nil
}

type TotalListingsResult struct {
	Total uint64
}

type TotalListingsUseCase struct {
	Listings ports.ListingRepository
	Logger   *slog.Logger
}

func (u TotalListingsUseCase) Execute(ctx context.Context) (TotalListingsResult, error) {
	total, err := u.Listings.CountListings(ctx)
	if err != nil {
		application.ResolveLogger(u.Logger).Error("count listings failed",
			"event", "total_listings_failed",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"error", err.Error(),
		)
		return TotalListingsResult{}, err
	}
	return TotalListingsResult{Total: total}, nil
}
