package app

import (
	"context"
	"time"

	"github.com/qrbn-app/qurban-crypto-app/internal/clock"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
	"github.com/qrbn-app/qurban-crypto-app/internal/metrics"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetPoolForUpdate(ctx context.Context, poolID string) (domain.Pool, error)

	// AdjustRemaining applies delta to the pool's remaining share count and
	// recomputes its available/full status in the same statement. It is the
	// single mutation point for share counts; the guarded update serializes
	// on the pool row. Returns domain.ErrConflict when the result would
	// leave [0, total].
	AdjustRemaining(ctx context.Context, poolID string, delta int) (domain.Pool, error)

	CreateReservation(ctx context.Context, r domain.Reservation) error
	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservationState(ctx context.Context, id string, state domain.ReservationState) error
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

type ReservationService struct {
	repo  ReservationRepository
	clock clock.Clock
}

func NewReservationService(repo ReservationRepository, clk clock.Clock) *ReservationService {
	return &ReservationService{
		repo:  repo,
		clock: clk,
	}
}

// Hold atomically deducts shares from the pool and records an active
// reservation expiring at now+ttl. Holds against the same pool serialize on
// the pool row lock, so two callers can never both take the last share.
func (s *ReservationService) Hold(ctx context.Context, poolID, buyerID string, shares int, ttl time.Duration) (domain.Reservation, error) {
	if poolID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	if buyerID == "" {
		return domain.Reservation{}, domain.ErrBuyerRequired
	}
	if shares <= 0 {
		return domain.Reservation{}, domain.ErrInvalidShares
	}

	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		pool, err := s.repo.GetPoolForUpdate(txCtx, poolID)
		if err != nil {
			return err
		}
		if pool.Status == domain.PoolStatusClosed {
			return domain.ErrPoolClosed
		}
		if shares > pool.RemainingShares {
			return domain.ErrInsufficientShares
		}

		if _, err := s.repo.AdjustRemaining(txCtx, poolID, -shares); err != nil {
			if err == domain.ErrConflict {
				return domain.ErrInsufficientShares
			}
			return err
		}

		reservation := domain.Reservation{
			ID:        newUUID(),
			PoolID:    poolID,
			BuyerID:   buyerID,
			Shares:    shares,
			State:     domain.ReservationStateActive,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		if err := s.repo.CreateReservation(txCtx, reservation); err != nil {
			return err
		}

		result = reservation
		return nil
	})
	if err != nil {
		if err == domain.ErrInsufficientShares {
			metrics.HoldsRejected.Inc()
		}
		return domain.Reservation{}, err
	}

	metrics.HoldsCreated.Inc()
	return result, nil
}

// Commit makes a reservation's deduction permanent. Committing an
// already-committed reservation is a no-op returning the same result. A
// lapsed reservation is released instead and ErrReservationExpired is
// returned; the caller must restart the purchase.
func (s *ReservationService) Commit(ctx context.Context, reservationID string) (domain.Reservation, error) {
	if reservationID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.Reservation

	// A lapsed reservation is released inside the transaction, but the
	// lapse is reported only after commit so the release is not rolled
	// back with the error.
	lapsed := false
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}

		switch reservation.State {
		case domain.ReservationStateCommitted:
			result = reservation
			return nil
		case domain.ReservationStateReleased:
			lapsed = true
			result = reservation
			return nil
		}

		if reservation.Expired(now) {
			if err := s.releaseLocked(txCtx, reservation); err != nil {
				return err
			}
			metrics.ReservationsExpired.Inc()
			lapsed = true
			reservation.State = domain.ReservationStateReleased
			result = reservation
			return nil
		}

		if err := s.repo.UpdateReservationState(txCtx, reservationID, domain.ReservationStateCommitted); err != nil {
			return err
		}
		reservation.State = domain.ReservationStateCommitted
		result = reservation
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	if lapsed {
		return result, domain.ErrReservationExpired
	}
	return result, nil
}

// Release returns an active reservation's shares to the pool. Releasing a
// released or committed reservation is a no-op.
func (s *ReservationService) Release(ctx context.Context, reservationID string) (domain.Reservation, error) {
	if reservationID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}

	var result domain.Reservation
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.State != domain.ReservationStateActive {
			result = reservation
			return nil
		}
		if err := s.releaseLocked(txCtx, reservation); err != nil {
			return err
		}
		reservation.State = domain.ReservationStateReleased
		result = reservation
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

// SweepOne releases the reservation only if it is still active and lapsed
// at the service clock's now. Reports whether a release happened. This is
// the timeout path; a concurrent commit wins the row lock and makes this a
// no-op.
func (s *ReservationService) SweepOne(ctx context.Context, reservationID string) (bool, error) {
	now := s.clock.Now()
	released := false
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.State != domain.ReservationStateActive || !reservation.Expired(now) {
			return nil
		}
		if err := s.releaseLocked(txCtx, reservation); err != nil {
			return err
		}
		metrics.ReservationsExpired.Inc()
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// ListExpired surfaces candidates for the sweeper.
func (s *ReservationService) ListExpired(ctx context.Context, limit int) ([]domain.Reservation, error) {
	return s.repo.ListExpiredActive(ctx, s.clock.Now(), limit)
}

// releaseLocked flips an active reservation to released and credits its
// shares back. The reservation row must already be locked.
func (s *ReservationService) releaseLocked(ctx context.Context, reservation domain.Reservation) error {
	if err := s.repo.UpdateReservationState(ctx, reservation.ID, domain.ReservationStateReleased); err != nil {
		return err
	}
	if _, err := s.repo.AdjustRemaining(ctx, reservation.PoolID, reservation.Shares); err != nil {
		return err
	}
	return nil
}
