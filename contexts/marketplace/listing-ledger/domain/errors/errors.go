package errors

import "errors"

var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrListingNotFound          = errors.New("listing not found")
	ErrInsufficientPayment      = errors.New("insufficient payment")
	ErrAlreadySold              = errors.New("listing already sold")
	ErrSelfPurchase             = errors.New("owner cannot purchase own listing")
	ErrTransferFailed           = errors.New("fund transfer failed")
	ErrIdempotencyKeyConflict   = errors.New("idempotency key reused with different request")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)
