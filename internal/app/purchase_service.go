package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qrbn-app/qurban-crypto-app/internal/clock"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
	"github.com/qrbn-app/qurban-crypto-app/internal/metrics"
)

type PurchaseRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetPool(ctx context.Context, id string) (domain.Pool, error)
	CreatePurchase(ctx context.Context, p domain.Purchase) error
	GetPurchase(ctx context.Context, id string) (domain.Purchase, error)
	GetPurchaseForUpdate(ctx context.Context, id string) (domain.Purchase, error)
	UpdatePurchase(ctx context.Context, p domain.Purchase) error
	ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error)
}

// PurchaseService drives each purchase through
// draft -> reviewed -> payment_pending -> completed | failed | expired.
//
// Workflow outcomes such as a sold-out pool or a lapsed reservation are
// persisted on the purchase record and reported through its State and
// FailureReason rather than as errors; errors signal caller mistakes or
// infrastructure failures.
type PurchaseService struct {
	repo         PurchaseRepository
	reservations *ReservationService
	ledger       *LedgerService
	certificates *CertificateService
	clock        clock.Clock
	holdTTL      time.Duration
}

const defaultHoldTTL = 15 * time.Minute

func NewPurchaseService(
	repo PurchaseRepository,
	reservations *ReservationService,
	ledger *LedgerService,
	certificates *CertificateService,
	clk clock.Clock,
	opts ...PurchaseServiceOption,
) *PurchaseService {
	svc := &PurchaseService{
		repo:         repo,
		reservations: reservations,
		ledger:       ledger,
		certificates: certificates,
		clock:        clk,
		holdTTL:      defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PurchaseServiceOption func(*PurchaseService)

// WithHoldTTL overrides the default reservation TTL attached at payment time.
func WithHoldTTL(d time.Duration) PurchaseServiceOption {
	return func(s *PurchaseService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

type StartPurchaseInput struct {
	PoolID  string
	BuyerID string
	Shares  int
}

// Start validates bounds against the pool snapshot, quotes the price, and
// persists a draft. No shares are held yet.
func (s *PurchaseService) Start(ctx context.Context, in StartPurchaseInput) (domain.Purchase, error) {
	if in.PoolID == "" {
		return domain.Purchase{}, domain.ErrInvalidID
	}
	if in.BuyerID == "" {
		return domain.Purchase{}, domain.ErrBuyerRequired
	}
	if in.Shares <= 0 {
		return domain.Purchase{}, domain.ErrInvalidShares
	}

	pool, err := s.repo.GetPool(ctx, in.PoolID)
	if err != nil {
		return domain.Purchase{}, err
	}
	if pool.Status == domain.PoolStatusClosed {
		return domain.Purchase{}, domain.ErrPoolClosed
	}
	// A whole-animal pool has a single indivisible share; asking for more
	// than the pool was ever divided into is a caller error, not sold-out.
	if in.Shares > pool.TotalShares {
		return domain.Purchase{}, domain.ErrInvalidShares
	}
	if in.Shares > pool.RemainingShares {
		return domain.Purchase{}, domain.ErrInsufficientShares
	}

	now := s.clock.Now()
	purchase := domain.Purchase{
		ID:        newUUID(),
		PoolID:    in.PoolID,
		BuyerID:   in.BuyerID,
		Shares:    in.Shares,
		Amount:    pool.PricePerShare.Mul(decimal.NewFromInt(int64(in.Shares))),
		Currency:  pool.Currency,
		State:     domain.PurchaseStateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		return domain.Purchase{}, err
	}
	return purchase, nil
}

// AdvanceToReview surfaces the order summary for buyer confirmation.
// Pure transition, no resources held.
func (s *PurchaseService) AdvanceToReview(ctx context.Context, purchaseID string) (domain.Purchase, error) {
	return s.transition(ctx, purchaseID, func(txCtx context.Context, p *domain.Purchase) error {
		if p.State != domain.PurchaseStateDraft {
			return domain.ErrInvalidTransition
		}
		p.State = domain.PurchaseStateReviewed
		return nil
	})
}

// AdvanceToPayment holds shares for the purchase. A sold-out pool moves the
// purchase straight to failed/sold_out; inspect the returned state.
func (s *PurchaseService) AdvanceToPayment(ctx context.Context, purchaseID string) (domain.Purchase, error) {
	return s.transition(ctx, purchaseID, func(txCtx context.Context, p *domain.Purchase) error {
		if p.State != domain.PurchaseStateReviewed {
			return domain.ErrInvalidTransition
		}

		reservation, err := s.reservations.Hold(txCtx, p.PoolID, p.BuyerID, p.Shares, s.holdTTL)
		if err != nil {
			if err == domain.ErrInsufficientShares {
				p.State = domain.PurchaseStateFailed
				p.FailureReason = domain.FailureReasonSoldOut
				return nil
			}
			return err
		}

		p.State = domain.PurchaseStatePaymentPending
		p.ReservationID = reservation.ID
		return nil
	})
}

// ConfirmPayment is called by the payment collaborator on success and is the
// sole path to a completed ledger entry. It commits the reservation, appends
// the entry, creates the pending certificate, and completes the purchase in
// one transaction. Safe to retry: confirming a completed purchase returns
// the same result. A lapsed reservation moves the purchase to expired.
func (s *PurchaseService) ConfirmPayment(ctx context.Context, purchaseID, externalRef string) (domain.Purchase, error) {
	if externalRef == "" {
		return domain.Purchase{}, domain.ErrInvalidID
	}
	return s.transition(ctx, purchaseID, func(txCtx context.Context, p *domain.Purchase) error {
		if p.State == domain.PurchaseStateCompleted {
			return nil
		}
		if p.State != domain.PurchaseStatePaymentPending {
			return domain.ErrInvalidTransition
		}

		if _, err := s.reservations.Commit(txCtx, p.ReservationID); err != nil {
			if err == domain.ErrReservationExpired {
				p.State = domain.PurchaseStateExpired
				return nil
			}
			return err
		}

		entry, err := s.ledger.Append(txCtx, domain.LedgerEntry{
			PoolID:        p.PoolID,
			BuyerID:       p.BuyerID,
			ReservationID: p.ReservationID,
			Shares:        p.Shares,
			Amount:        p.Amount,
			Currency:      p.Currency,
			ExternalRef:   externalRef,
			Outcome:       domain.LedgerOutcomeCompleted,
		})
		if err != nil {
			return err
		}
		if err := s.certificates.CreatePending(txCtx, entry); err != nil {
			return err
		}

		p.State = domain.PurchaseStateCompleted
		metrics.PurchasesCompleted.Inc()
		return nil
	})
}

// FailPayment is called by the payment collaborator on failure. The hold is
// released, a failed ledger entry is appended, and the purchase fails.
// Failing an already-failed purchase is a no-op.
func (s *PurchaseService) FailPayment(ctx context.Context, purchaseID, reason string) (domain.Purchase, error) {
	return s.transition(ctx, purchaseID, func(txCtx context.Context, p *domain.Purchase) error {
		if p.State == domain.PurchaseStateFailed {
			return nil
		}
		if p.State != domain.PurchaseStatePaymentPending {
			return domain.ErrInvalidTransition
		}

		if _, err := s.reservations.Release(txCtx, p.ReservationID); err != nil {
			return err
		}
		if _, err := s.ledger.Append(txCtx, domain.LedgerEntry{
			PoolID:        p.PoolID,
			BuyerID:       p.BuyerID,
			ReservationID: p.ReservationID,
			Shares:        p.Shares,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Outcome:       domain.LedgerOutcomeFailed,
		}); err != nil {
			return err
		}

		p.State = domain.PurchaseStateFailed
		if reason == "" {
			reason = domain.FailureReasonPaymentFailed
		}
		p.FailureReason = reason
		metrics.PurchasesFailed.Inc()
		return nil
	})
}

// Cancel is allowed from draft, reviewed, and payment_pending. Any held
// reservation is released synchronously.
func (s *PurchaseService) Cancel(ctx context.Context, purchaseID string) (domain.Purchase, error) {
	return s.transition(ctx, purchaseID, func(txCtx context.Context, p *domain.Purchase) error {
		switch p.State {
		case domain.PurchaseStateDraft, domain.PurchaseStateReviewed:
		case domain.PurchaseStatePaymentPending:
			if _, err := s.reservations.Release(txCtx, p.ReservationID); err != nil {
				return err
			}
		default:
			return domain.ErrInvalidTransition
		}

		p.State = domain.PurchaseStateFailed
		p.FailureReason = domain.FailureReasonCancelled
		metrics.PurchasesFailed.Inc()
		return nil
	})
}

func (s *PurchaseService) Get(ctx context.Context, purchaseID string) (domain.Purchase, error) {
	if purchaseID == "" {
		return domain.Purchase{}, domain.ErrInvalidID
	}
	return s.repo.GetPurchase(ctx, purchaseID)
}

func (s *PurchaseService) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	if buyerID == "" {
		return nil, domain.ErrBuyerRequired
	}
	return s.repo.ListPurchasesByBuyer(ctx, buyerID)
}

// transition loads the purchase under lock, applies fn, and persists the
// mutated record when fn succeeds.
func (s *PurchaseService) transition(ctx context.Context, purchaseID string, fn func(ctx context.Context, p *domain.Purchase) error) (domain.Purchase, error) {
	if purchaseID == "" {
		return domain.Purchase{}, domain.ErrInvalidID
	}

	var result domain.Purchase
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		purchase, err := s.repo.GetPurchaseForUpdate(txCtx, purchaseID)
		if err != nil {
			return err
		}

		before := purchase
		if err := fn(txCtx, &purchase); err != nil {
			return err
		}
		if purchase != before {
			purchase.UpdatedAt = s.clock.Now()
			if err := s.repo.UpdatePurchase(txCtx, purchase); err != nil {
				return err
			}
		}
		result = purchase
		return nil
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	return result, nil
}
