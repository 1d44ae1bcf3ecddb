package listingledger

import (
	"log/slog"
	"time"

	httpadapter "bazaar/contexts/marketplace/listing-ledger/adapters/http"
	"bazaar/contexts/marketplace/listing-ledger/adapters/memory"
	"bazaar/contexts/marketplace/listing-ledger/application/commands"
	"bazaar/contexts/marketplace/listing-ledger/application/queries"
	"bazaar/contexts/marketplace/listing-ledger/ports"
)

// Module is the composition surface of the listing ledger.
// Runtime wiring should consume Handler; Store is exposed for tests/inspection.
type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Listings       ports.ListingRepository
	Balances       ports.BalanceReader
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	IdempotencyTTL time.Duration
	Metrics        ports.Metrics
	Logger         *slog.Logger
}

// NewModule wires the ledger use cases against explicit ports.
func NewModule(deps Dependencies) Module {
	handler := httpadapter.Handler{
		CreateListing: commands.CreateListingUseCase{
			Listings:       deps.Listings,
			Idempotency:    deps.Idempotency,
			Clock:          deps.Clock,
			IDGenerator:    deps.IDGenerator,
			IdempotencyTTL: deps.IdempotencyTTL,
			Metrics:        deps.Metrics,
			Logger:         deps.Logger,
		},
		PurchaseListing: commands.PurchaseListingUseCase{
			Listings:    deps.Listings,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Metrics:     deps.Metrics,
			Logger:      deps.Logger,
		},
		GetListing: queries.GetListingUseCase{
			Listings: deps.Listings,
			Logger:   deps.Logger,
		},
		ListListings: queries.ListListingsUseCase{
			Listings: deps.Listings,
			Logger:   deps.Logger,
		},
		TotalListings: queries.TotalListingsUseCase{
			Listings: deps.Listings,
			Logger:   deps.Logger,
		},
		IsAvailable: queries.IsAvailableUseCase{
			Listings: deps.Listings,
			Logger:   deps.Logger,
		},
		GetBalance: queries.GetBalanceUseCase{
			Balances: deps.Balances,
			Logger:   deps.Logger,
		},
		Logger: deps.Logger,
	}
	return Module{Handler: handler}
}

// NewInMemoryModule wires the ledger against the in-memory store. This is the
// developer runtime path when no POSTGRES_DSN is configured.
func NewInMemoryModule(logger *slog.Logger, opts ...memory.Option) Module {
	store := memory.NewStore(logger, opts...)
	module := NewModule(Dependencies{
		Listings:       store,
		Balances:       store,
		Idempotency:    store,
		Clock:          store,
		IDGenerator:    store,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
