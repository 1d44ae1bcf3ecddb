package queries

import (
	"context"
	"log/slog"

	application "bazaar/contexts/marketplace/listing-ledger/application"
	domainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

type GetBalanceQuery struct {
	Account string
}

type GetBalanceResult struct {
	Account string
	Balance uint64
}

type GetBalanceUseCase struct {
	Balances ports.BalanceReader
	Logger   *slog.Logger
}

func (u GetBalanceUseCase) Execute(ctx context.Context, query GetBalanceQuery) (GetBalanceResult, error) {
	if query.Account == "" {
		return GetBalanceResult{}, domainerrors.ErrInvalidInput
	}
	balance, err := u.Balances.GetBalance(ctx, query.Account)
	if err != nil {
		application.ResolveLogger(u.Logger).Error("get balance failed",
			"event", "get_balance_failed",
			"module", "marketplace/listing-ledger",
			"layer", "application",
			"account", query.Account,
			"error", err.Error(),
		)
		return GetBalanceResult{}, err
	}
	return GetBalanceResult{Account: query.Account, Balance: balance}, nil
}
