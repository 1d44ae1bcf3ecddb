package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"bazaar/contexts/marketplace/listing-ledger/ports"
)

var (
	errEmptyAccount    = errors.New("transfer recipient is empty")
	errBalanceOverflow = errors.New("recipient balance would overflow")
)

// Book is an in-memory balance book. It is the default Payments adapter of
// Store and credits every transfer of a settlement in one step.
type Book struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

func NewBook() *Book {
	return &Book{balances: make(map[string]uint64)}
}

func (b *Book) Deliver(_ context.Context, settlement ports.Settlement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[string]uint64, len(settlement.Transfers))
	for _, transfer := range settlement.Transfers {
		if transfer.Account == "" {
			return errEmptyAccount
		}
		current, ok := staged[transfer.Account]
		if !ok {
			current = b.balances[transfer.Account]
		}
		if transfer.Amount > math.MaxUint64-current {
			return fmt.Errorf("%w: account %s", errBalanceOverflow, transfer.Account)
		}
		staged[transfer.Account] = current + transfer.Amount
	}
	for account, balance := range staged {
		b.balances[account] = balance
	}
	return nil
}

func (b *Book) GetBalance(_ context.Context, account string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[account], nil
}

// Seed sets an opening balance, used to reproduce overflow conditions.
func (b *Book) Seed(account string, balance uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = balance
}
