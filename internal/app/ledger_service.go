package app

import (
	"context"
	"log"

	"github.com/qrbn-app/qurban-crypto-app/internal/clock"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

type LedgerRepository interface {
	// AppendEntry inserts an entry. Returns domain.ErrDuplicateReservation
	// when an entry already references the same reservation.
	AppendEntry(ctx context.Context, entry domain.LedgerEntry) error
	ListEntriesByPool(ctx context.Context, poolID string) ([]domain.LedgerEntry, error)
	ListEntriesByBuyer(ctx context.Context, buyerID string) ([]domain.LedgerEntry, error)
}

// LedgerService owns the append-only record of finalized purchase outcomes.
// Entries are never updated or deleted.
type LedgerService struct {
	repo   LedgerRepository
	clock  clock.Clock
	logger *log.Logger
}

func NewLedgerService(repo LedgerRepository, clk clock.Clock, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Default()
	}
	return &LedgerService{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

// Append assigns the entry its id and timestamp and persists it. A duplicate
// reservation reference means a caller bypassed the workflow; it is logged
// and rejected, never silently ignored.
func (s *LedgerService) Append(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if entry.PoolID == "" || entry.ReservationID == "" {
		return domain.LedgerEntry{}, domain.ErrInvalidID
	}
	if entry.BuyerID == "" {
		return domain.LedgerEntry{}, domain.ErrBuyerRequired
	}
	if entry.Shares <= 0 {
		return domain.LedgerEntry{}, domain.ErrInvalidShares
	}

	entry.ID = newUUID()
	entry.CreatedAt = s.clock.Now()

	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		if err == domain.ErrDuplicateReservation {
			s.logger.Printf("ERROR: duplicate ledger append for reservation %s", entry.ReservationID)
		}
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *LedgerService) ListByPool(ctx context.Context, poolID string) ([]domain.LedgerEntry, error) {
	if poolID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListEntriesByPool(ctx, poolID)
}

func (s *LedgerService) ListByBuyer(ctx context.Context, buyerID string) ([]domain.LedgerEntry, error) {
	if buyerID == "" {
		return nil, domain.ErrBuyerRequired
	}
	return s.repo.ListEntriesByBuyer(ctx, buyerID)
}
