package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// ExpiredPurchaseMarker moves the purchase owning a swept reservation to the
// expired state so the buyer sees they must restart.
type ExpiredPurchaseMarker interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockPurchaseByReservation(ctx context.Context, reservationID string) error
	MarkPurchaseExpiredByReservation(ctx context.Context, reservationID string) (bool, error)
}

// Sweeper periodically reclaims lapsed reservations. It is the only actor
// allowed to release on timeout, and it goes through the same serialized
// release path as an explicit cancel, so shares are never double-credited.
type Sweeper struct {
	reservations *ReservationService
	purchases    ExpiredPurchaseMarker
	logger       *log.Logger
	interval     time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

const (
	defaultSweepInterval = 5 * time.Second
	sweepBatchSize       = 100
)

func NewSweeper(reservations *ReservationService, purchases ExpiredPurchaseMarker, logger *log.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		reservations: reservations,
		purchases:    purchases,
		logger:       logger,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.run()
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
}

func (s *Sweeper) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			if n, err := s.SweepOnce(context.Background()); err != nil {
				s.logger.Printf("WARN: reservation sweep: %v", err)
			} else if n > 0 {
				s.logger.Printf("released %d expired reservations", n)
			}
		case <-s.stop:
			return
		}
	}
}

// SweepOnce releases every currently-lapsed active reservation and expires
// its owning purchase. Each reservation is handled in its own transaction so
// one bad row cannot wedge the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.reservations.ListExpired(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, reservation := range expired {
		err := s.purchases.WithTx(ctx, func(txCtx context.Context) error {
			// Purchase row first, then reservation row: the confirm path
			// locks in that order, so sweep must too.
			if err := s.purchases.LockPurchaseByReservation(txCtx, reservation.ID); err != nil {
				return err
			}
			ok, err := s.reservations.SweepOne(txCtx, reservation.ID)
			if err != nil || !ok {
				return err
			}
			if _, err := s.purchases.MarkPurchaseExpiredByReservation(txCtx, reservation.ID); err != nil {
				return err
			}
			released++
			return nil
		})
		if err != nil {
			return released, err
		}
	}
	return released, nil
}
