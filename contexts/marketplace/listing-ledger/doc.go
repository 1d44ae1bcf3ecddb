// Package listingledger contains the marketplace listing ledger: listing
// creation, atomic purchase settlement, and the read projections over the
// listing table.
//
// Domain and application logic stay decoupled from runtime/platform concerns
// through ports and adapter composition.
package listingledger
