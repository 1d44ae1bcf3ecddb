package entities

type TransferKind string

const (
	TransferKindSellerPayout TransferKind = "seller_payout"
	TransferKindBuyerRefund  TransferKind = "buyer_refund"
)

// Transfer is one outbound movement of funds produced by a purchase.
type Transfer struct {
	TransferID string
	ListingID  uint64
	Kind       TransferKind
	Account    string
	Amount     uint64
}
