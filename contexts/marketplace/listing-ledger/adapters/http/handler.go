package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	"bazaar/contexts/marketplace/listing-ledger/application/commands"
	"bazaar/contexts/marketplace/listing-ledger/application/queries"
	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	httptransport "bazaar/contexts/marketplace/listing-ledger/transport/http"
)

type Handler struct {
	CreateListing   commands.CreateListingUseCase
	PurchaseListing commands.PurchaseListingUseCase
	GetListing      queries.GetListingUseCase
	ListListings    queries.ListListingsUseCase
	TotalListings   queries.TotalListingsUseCase
	IsAvailable     queries.IsAvailableUseCase
	GetBalance      queries.GetBalanceUseCase
	Logger          *slog.Logger
}

// CreateListingHandler godoc
// @Summary Create a listing
// @Description Lists an item for sale owned by the caller. Price is in the smallest currency unit.
// @Tags listing-ledger
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param Idempotency-Key header string false "Replay-safe creation key"
// @Param request body httptransport.CreateListingRequest true "Listing"
// @Success 201 {object} httptransport.CreateListingResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings [post]
func (h Handler) CreateListingHandler(
	ctx context.Context,
	caller string,
	idempotencyKey string,
	req httptransport.CreateListingRequest,
) (httptransport.CreateListingResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create listing request received",
		"event", "http_create_listing_received",
		"module", "marketplace/listing-ledger",
		"layer", "transport",
		"caller", caller,
	)

	result, err := h.CreateListing.Execute(ctx, commands.CreateListingCommand{
		Caller:         caller,
		Title:          req.Title,
		Details:        req.Details,
		Price:          req.Price,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		logger.Error("create listing request failed",
			"event", "http_create_listing_failed",
			"module", "marketplace/listing-ledger",
			"layer", "transport",
			"caller", caller,
			"error", err.Error(),
		)
		return httptransport.CreateListingResponse{}, err
	}

	return httptransport.CreateListingResponse{
		ListingID: result.Listing.ID,
		Replayed:  result.Replayed,
	}, nil
}

// PurchaseListingHandler godoc
// @Summary Purchase a listing
// @Description Pays the owner the listing price and refunds any overpayment to the caller in one atomic commit.
// @Tags listing-ledger
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param listing_id path int true "Listing id"
// @Param request body httptransport.PurchaseListingRequest true "Attached funds"
// @Success 200 {object} httptransport.PurchaseListingResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 502 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/purchase [post]
func (h Handler) PurchaseListingHandler(
	ctx context.Context,
	caller string,
	listingID uint64,
	req httptransport.PurchaseListingRequest,
) (httptransport.PurchaseListingResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("purchase listing request received",
		"event", "http_purchase_listing_received",
		"module", "marketplace/listing-ledger",
		"layer", "transport",
		"caller", caller,
		"listing_id", listingID,
	)

	result, err := h.PurchaseListing.Execute(ctx, commands.PurchaseListingCommand{
		Caller:     caller,
		ListingID:  listingID,
		AmountSent: req.AmountSent,
	})
	if err != nil {
		return httptransport.PurchaseListingResponse{}, err
	}

	receipt := result.Receipt
	transfers := make([]httptransport.TransferDTO, 0, len(receipt.Transfers))
	for _, transfer := range receipt.Transfers {
		transfers = append(transfers, httptransport.TransferDTO{
			TransferID: transfer.TransferID,
			Kind:       string(transfer.Kind),
			Account:    transfer.Account,
			Amount:     transfer.Amount,
		})
	}
	return httptransport.PurchaseListingResponse{
		ListingID:    receipt.Listing.ID,
		Owner:        receipt.Listing.Owner,
		Buyer:        receipt.Listing.Buyer,
		SellerPaid:   receipt.SellerPaid,
		RefundIssued: receipt.RefundIssued,
		Transfers:    transfers,
	}, nil
}

// GetListingHandler godoc
// @Summary Get listing
// @Description Returns one listing by id.
// @Tags listing-ledger
// @Produce json
// @Param listing_id path int true "Listing id"
// @Success 200 {object} httptransport.GetListingResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id} [get]
func (h Handler) GetListingHandler(ctx context.Context, listingID uint64) (httptransport.GetListingResponse, error) {
	result, err := h.GetListing.Execute(ctx, queries.GetListingQuery{ListingID: listingID})
	if err != nil {
		return httptransport.GetListingResponse{}, err
	}
	return httptransport.GetListingResponse{Item: mapListing(result.Listing)}, nil
}

// ListListingsHandler godoc
// @Summary List listings
// @Description Returns every listing, sold ones included, in ascending id order.
// @Tags listing-ledger
// @Produce json
// @Success 200 {object} httptransport.ListListingsResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings [get]
func (h Handler) ListListingsHandler(ctx context.Context) (httptransport.ListListingsResponse, error) {
	result, err := h.ListListings.Execute(ctx)
	if err != nil {
		return httptransport.ListListingsResponse{}, err
	}
	items := make([]httptransport.ListingDTO, 0, len(result.Items))
	for _, listing := range result.Items {
		items = append(items, mapListing(listing))
	}
	return httptransport.ListListingsResponse{Items: items}, nil
}

// TotalListingsHandler godoc
// @Summary Count listings
// @Description Returns the listing counter, which is also the highest assigned id.
// @Tags listing-ledger
// @Produce json
// @Success 200 {object} httptransport.TotalListingsResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings/count [get]
func (h Handler) TotalListingsHandler(ctx context.Context) (httptransport.TotalListingsResponse, error) {
	result, err := h.TotalListings.Execute(ctx)
	if err != nil {
		return httptransport.TotalListingsResponse{}, err
	}
	return httptransport.TotalListingsResponse{Total: result.Total}, nil
}

// AvailabilityHandler godoc
// @Summary Listing availability
// @Description Reports whether a listing exists and is unsold. Unknown ids are reported unavailable.
// @Tags listing-ledger
// @Produce json
// @Param listing_id path int true "Listing id"
// @Success 200 {object} httptransport.AvailabilityResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/availability [get]
func (h Handler) AvailabilityHandler(ctx context.Context, listingID uint64) (httptransport.AvailabilityResponse, error) {
	result, err := h.IsAvailable.Execute(ctx, queries.IsAvailableQuery{ListingID: listingID})
	if err != nil {
		return httptransport.AvailabilityResponse{}, err
	}
	return httptransport.AvailabilityResponse{
		ListingID: listingID,
		Available: result.Available,
	}, nil
}

// BalanceHandler godoc
// @Summary Account balance
// @Description Returns funds credited to an identity by settled purchases.
// @Tags listing-ledger
// @Produce json
// @Param account_id path string true "Account identity"
// @Success 200 {object} httptransport.BalanceResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/accounts/{account_id}/balance [get]
func (h Handler) BalanceHandler(ctx context.Context, account string) (httptransport.BalanceResponse, error) {
	result, err := h.GetBalance.Execute(ctx, queries.GetBalanceQuery{Account: account})
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	return httptransport.BalanceResponse{
		Account: result.Account,
		Balance: result.Balance,
	}, nil
}

func mapListing(listing entities.Listing) httptransport.ListingDTO {
	item := httptransport.ListingDTO{
		ListingID: listing.ID,
		Title:     listing.Title,
		Details:   listing.Details,
		Price:     listing.Price,
		Owner:     listing.Owner,
		Sold:      listing.Sold,
		Status:    string(listing.Status()),
		Buyer:     listing.Buyer,
		CreatedAt: listing.CreatedAt.UTC().Format(time.RFC3339),
	}
	if listing.SoldAt != nil {
		item.SoldAt = listing.SoldAt.UTC().Format(time.RFC3339)
	}
	return item
}
