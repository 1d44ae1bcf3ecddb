package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type PurchaseListingCommand struct {
	Caller     string
	ListingID  uint64
	AmountSent uint64
}

type PurchaseListingResult struct {
	Receipt ports.PurchaseReceipt
}

type PurchaseListingUseCase struct {
	Listings    ports.ListingRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger
}

// Execute hands the purchase to the repository as one commit. Guard
// evaluation happens inside that commit so concurrent purchases of the same
// listing cannot both pass the availability check.
//
// Purchases are not deduplicated here: a retried purchase of a sold listing
// fails with ErrAlreadySold.
func (u PurchaseListingUseCase) Execute(ctx context.Context, cmd PurchaseListingCommand) (PurchaseListingResult, error) {
	logger := application.ResolveLogger(u.Logger)
	metrics := application.ResolveMetrics(u.Metrics)
	if cmd.Caller == "" {
		metrics.PurchaseRejected(rejectionReason(domainerrors.ErrInvalidInput))
		return PurchaseListingResult{}, domainerrors.ErrInvalidInput
	}

	logger.Info("purchase listing started",
		"event", "purchase_listing_started",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"listing_id", cmd.ListingID,
		"buyer", cmd.Caller,
		"amount_sent", cmd.AmountSent,
	)

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return PurchaseListingResult{}, err
	}

	receipt, err := u.Listings.PurchaseListing(ctx, ports.PurchaseInput{
		ListingID:   cmd.ListingID,
		Buyer:       cmd.Caller,
		AmountSent:  cmd.AmountSent,
		PurchasedAt: u.now(),
		EventID:     eventID,
	})
	if err != nil {
		metrics.PurchaseRejected(rejectionReason(err))
		if errors.Is(err, domainerrors.ErrTransferFailed) {
			logger.Error("purchase listing settlement failed",
				"event", "purchase_listing_transfer_failed",
				"module", "marketplace/listing-ledger",
				"layer", "application",
				"listing_id", cmd.ListingID,
				"buyer", cmd.Caller,
				"error", err.Error(),
			)
			return PurchaseListingResult{}, err
		}
		logger.Warn("purchase listing rejected",
			"event", "purchase_listing_rejected",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"listing_id", cmd.ListingID,
			"buyer", cmd.Caller,
			"error", err.Error(),
		)
		return PurchaseListingResult{}, err
	}

	metrics.PurchaseCompleted(receipt.SellerPaid, receipt.RefundIssued)
	logger.Info("listing sold",
		"event", "listing_sold",
		"module", "marketplace/listing-ledger",
		"layer", "application",
		"listing_id", receipt.Listing.ID,
		"owner", receipt.Listing.Owner,
		"buyer", receipt.Listing.Buyer,
		"seller_paid", receipt.SellerPaid,
		"refund_issued", receipt.RefundIssued,
	)

	return PurchaseListingResult{Receipt: receipt}, nil
}

func (u PurchaseListingUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domainerrors.ErrListingNotFound):
		return "not_found"
	case errors.Is(err, domainerrors.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, domainerrors.ErrAlreadySold):
		return "already_sold"
	case errors.Is(err, domainerrors.ErrSelfPurchase):
		return "self_purchase"
	case errors.Is(err, domainerrors.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}
