package domain

import "time"

type ReservationState string

const (
	ReservationStateActive    ReservationState = "active"
	ReservationStateCommitted ReservationState = "committed"
	ReservationStateReleased  ReservationState = "released"
)

// Reservation is a temporary claim on pool shares while a purchase moves
// through payment. Its shares are already deducted from the pool; releasing
// credits them back, committing makes the deduction permanent.
type Reservation struct {
	ID        string
	PoolID    string
	BuyerID   string
	Shares    int
	State     ReservationState
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the reservation has lapsed at the given instant.
// Only meaningful for active reservations.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
