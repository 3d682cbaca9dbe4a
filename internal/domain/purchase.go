package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseState string

const (
	PurchaseStateDraft          PurchaseState = "draft"
	PurchaseStateReviewed       PurchaseState = "reviewed"
	PurchaseStatePaymentPending PurchaseState = "payment_pending"
	PurchaseStateCompleted      PurchaseState = "completed"
	PurchaseStateFailed         PurchaseState = "failed"
	PurchaseStateExpired        PurchaseState = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s PurchaseState) Terminal() bool {
	switch s {
	case PurchaseStateCompleted, PurchaseStateFailed, PurchaseStateExpired:
		return true
	}
	return false
}

// Failure reasons recorded on purchases that end in the failed state.
const (
	FailureReasonSoldOut       = "sold_out"
	FailureReasonCancelled     = "cancelled"
	FailureReasonPaymentFailed = "payment_failed"
)

// Purchase is one buyer's walk through the workflow
// draft -> reviewed -> payment_pending -> completed | failed | expired.
// Amount is quoted at draft time and never recomputed.
type Purchase struct {
	ID            string
	PoolID        string
	BuyerID       string
	Shares        int
	Amount        decimal.Decimal
	Currency      string
	State         PurchaseState
	ReservationID string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
