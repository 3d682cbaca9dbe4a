package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerOutcome string

const (
	LedgerOutcomeCompleted LedgerOutcome = "completed"
	LedgerOutcomeFailed    LedgerOutcome = "failed"
)

// LedgerEntry is the immutable record of a finalized purchase attempt.
// Entries are append-only; corrections never rewrite history. Exactly one
// completed entry may exist per committed reservation.
type LedgerEntry struct {
	ID            string
	PoolID        string
	BuyerID       string
	ReservationID string
	Shares        int
	Amount        decimal.Decimal
	Currency      string
	ExternalRef   string
	Outcome       LedgerOutcome
	CreatedAt     time.Time
}
