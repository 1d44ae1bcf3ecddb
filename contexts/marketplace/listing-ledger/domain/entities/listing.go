package entities

import (
	"time"

	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
)

type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusSold   ListingStatus = "sold"
)

type Listing struct {
	ID        uint64
	Title     string
	Details   string
	Price     uint64
	Owner     string
	Sold      bool
	Buyer     string
	CreatedAt time.Time
	SoldAt    *time.Time
}

// NewListing validates create parameters. Title is stored as given; trimming is
// the caller's job.
func NewListing(id uint64, owner string, title string, details string, price uint64, createdAt time.Time) (Listing, error) {
	if id == 0 || owner == "" || title == "" || price == 0 {
		return Listing{}, domainerrors.ErrInvalidInput
	}
	return Listing{
		ID:        id,
		Title:     title,
		Details:   details,
		Price:     price,
		Owner:     owner,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (l Listing) Status() ListingStatus {
	if l.Sold {
		return ListingStatusSold
	}
	return ListingStatusActive
}

// MarkSold performs the only state transition a listing has: active -> sold.
func (l *Listing) MarkSold(buyer string, at time.Time) error {
	if l.Sold {
		return domainerrors.ErrAlreadySold
	}
	soldAt := at.UTC()
	l.Sold = true
	l.Buyer = buyer
	l.SoldAt = &soldAt
	return nil
}

// Clone returns a copy that shares no memory with the receiver.
func (l Listing) Clone() Listing {
	out := l
	if l.SoldAt != nil {
		soldAt := *l.SoldAt
		out.SoldAt = &soldAt
	}
	return out
}
