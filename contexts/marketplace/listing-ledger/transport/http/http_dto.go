package httptransport

type CreateListingRequest struct {
	Title   string `json:"title"`
	Details string `json:"details"`
	Price   uint64 `json:"price"`
}

type CreateListingResponse struct {
	ListingID uint64 `json:"listing_id"`
	Replayed  bool   `json:"replayed,omitempty"`
}

type PurchaseListingRequest struct {
	AmountSent uint64 `json:"amount_sent"`
}

type TransferDTO struct {
	TransferID string `json:"transfer_id"`
	Kind       string `json:"kind"`
	Account    string `json:"account"`
	Amount     uint64 `json:"amount"`
}

type PurchaseListingResponse struct {
	ListingID    uint64        `json:"listing_id"`
	Owner        string        `json:"owner"`
	Buyer        string        `json:"buyer"`
	SellerPaid   uint64        `json:"seller_paid"`
	RefundIssued uint64        `json:"refund_issued"`
	Transfers    []TransferDTO `json:"transfers"`
}

type ListingDTO struct {
	ListingID uint64 `json:"listing_id"`
	Title     string `json:"title"`
	Details   string `json:"details"`
	Price     uint64 `json:"price"`
	Owner     string `json:"owner"`
	Sold      bool   `json:"sold"`
	Status    string `json:"status"`
	Buyer     string `json:"buyer,omitempty"`
	CreatedAt string `json:"created_at"`
	SoldAt    string `json:"sold_at,omitempty"`
}

type GetListingResponse struct {
	Item ListingDTO `json:"item"`
}

type ListListingsResponse struct {
	Items []ListingDTO `json:"items"`
}

type TotalListingsResponse struct {
	Total uint64 `json:"total"`
}

type AvailabilityResponse struct {
	ListingID uint64 `json:"listing_id"`
	Available bool   `json:"available"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
