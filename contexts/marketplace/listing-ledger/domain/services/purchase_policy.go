package services

import (
	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
)

// EvaluatePurchase applies the purchase guards in their fixed order:
// existence, payment, availability, ownership. The first failing guard wins.
func EvaluatePurchase(listing entities.Listing, found bool, buyer string, amountSent uint64) error {
	if !found {
		return domainerrors.ErrListingNotFound
	}
	if amountSent < listing.Price {
		return domainerrors.ErrInsufficientPayment
	}
	if listing.Sold {
		return domainerrors.ErrAlreadySold
	}
	if buyer == listing.Owner {
		return domainerrors.ErrSelfPurchase
	}
	return nil
}

// PlanSettlement splits the attached funds into the seller payout and, for an
// overpayment, the buyer refund. ids supplies one identifier per transfer.
func PlanSettlement(listing entities.Listing, buyer string, amountSent uint64, ids func() string) []entities.Transfer {
	transfers := []entities.Transfer{{
		TransferID: ids(),
		ListingID:  listing.ID,
		Kind:       entities.TransferKindSellerPayout,
		Account:    listing.Owner,
		Amount:     listing.Price,
	}}
	if amountSent > listing.Price {
		transfers = append(transfers, entities.Transfer{
			TransferID: ids(),
			ListingID:  listing.ID,
			Kind:       entities.TransferKindBuyerRefund,
			Account:    buyer,
			Amount:     amountSent - listing.Price,
		})
	}
	return transfers
}
