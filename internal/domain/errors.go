package domain

import "errors"

var (
	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolClosed          = errors.New("pool closed")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrCertificateNotFound = errors.New("certificate not found")

	ErrInvalidKind     = errors.New("invalid pool kind")
	ErrInvalidShares   = errors.New("invalid share count")
	ErrInvalidPrice    = errors.New("invalid price per share")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidID       = errors.New("invalid id")
	ErrBuyerRequired   = errors.New("buyer id required")

	ErrInsufficientShares = errors.New("insufficient shares")
	ErrReservationExpired = errors.New("reservation expired")
	ErrInvalidTransition  = errors.New("invalid purchase state transition")

	// ErrConflict signals a concurrent share-count mutation; the single
	// operation is safe to retry.
	ErrConflict = errors.New("conflicting share adjustment")

	// ErrDuplicateReservation means a ledger entry already references the
	// reservation. This indicates a bug in a caller, not a retryable state.
	ErrDuplicateReservation = errors.New("duplicate reservation in ledger")

	ErrMintFailed = errors.New("certificate mint failed")
)
