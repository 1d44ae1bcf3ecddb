package postgresadapter

import (
	"time"

	"bazaar/contexts/marketplace/listing-ledger/domain/entities"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type counterModel struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null"`
}

func (counterModel) TableName() string {
	return "ledger_counters"
}

type listingModel struct {
	ListingID int64      `gorm:"column:listing_id;primaryKey;autoIncrement:false"`
	Title     string     `gorm:"column:title;not null"`
	Details   string     `gorm:"column:details"`
	Price     int64      `gorm:"column:price;not null"`
	Owner     string     `gorm:"column:owner;not null;index"`
	Sold      bool       `gorm:"column:sold;not null;default:false"`
	Buyer     string     `gorm:"column:buyer"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	SoldAt    *time.Time `gorm:"column:sold_at"`
}

func (listingModel) TableName() string {
	return "ledger_listings"
}

func listingModelFromEntity(listing entities.Listing) listingModel {
	return listingModel{
		ListingID: int64(listing.ID),
		Title:     listing.Title,
		Details:   listing.Details,
		Price:     int64(listing.Price),
		Owner:     listing.Owner,
		Sold:      listing.Sold,
		Buyer:     listing.Buyer,
		CreatedAt: listing.CreatedAt.UTC(),
		SoldAt:    listing.SoldAt,
	}
}

func (m listingModel) toEntity() entities.Listing {
	listing := entities.Listing{
		ID:        uint64(m.ListingID),
		Title:     m.Title,
		Details:   m.Details,
		Price:     uint64(m.Price),
		Owner:     m.Owner,
		Sold:      m.Sold,
		Buyer:     m.Buyer,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.SoldAt != nil {
		soldAt := m.SoldAt.UTC()
		listing.SoldAt = &soldAt
	}
	return listing
}

type transferModel struct {
	TransferID string    `gorm:"column:transfer_id;primaryKey"`
	ListingID  int64     `gorm:"column:listing_id;index"`
	Kind       string    `gorm:"column:kind"`
	Account    string    `gorm:"column:account"`
	Amount     int64     `gorm:"column:amount"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (transferModel) TableName() string {
	return "ledger_transfers"
}

func transferModelFromEntity(transfer entities.Transfer, at time.Time) transferModel {
	return transferModel{
		TransferID: transfer.TransferID,
		ListingID:  int64(transfer.ListingID),
		Kind:       string(transfer.Kind),
		Account:    transfer.Account,
		Amount:     int64(transfer.Amount),
		CreatedAt:  at.UTC(),
	}
}

type balanceModel struct {
	Account string `gorm:"column:account;primaryKey"`
	Balance int64  `gorm:"column:balance;not null"`
}

func (balanceModel) TableName() string {
	return "account_balances"
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	ListingID   int64     `gorm:"column:listing_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "ledger_idempotency"
}

func idempotencyModelFromClaim(claim ports.IdempotencyClaim, listingID uint64) idempotencyModel {
	return idempotencyModel{
		Key:         claim.Key,
		RequestHash: claim.RequestHash,
		ListingID:   int64(listingID),
		ExpiresAt:   claim.ExpiresAt.UTC(),
	}
}

func (m idempotencyModel) expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.UTC().After(m.ExpiresAt.UTC())
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:         m.Key,
		RequestHash: m.RequestHash,
		ListingID:   uint64(m.ListingID),
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

type outboxModel struct {
	Sequence     int64      `gorm:"column:sequence;autoIncrement;uniqueIndex"`
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "ledger_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		Sequence:     uint64(m.Sequence),
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      m.Payload,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
