package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

type AdminRepository interface {
	PoolTotals(ctx context.Context) (PoolTotals, error)
	CompletedTotals(ctx context.Context) (CompletedTotals, error)
	KindBreakdown(ctx context.Context) ([]KindStats, error)
}

type PoolTotals struct {
	TotalPools      int
	AvailablePools  int
	ClosedPools     int
	TotalShares     int
	RemainingShares int
}

type CompletedTotals struct {
	CompletedPurchases int
	TotalRevenue       decimal.Decimal
}

type KindStats struct {
	Kind            domain.PoolKind
	Pools           int
	TotalShares     int
	CompletedShares int
	Revenue         decimal.Decimal
}

type Stats struct {
	TotalPools         int
	AvailablePools     int
	ClosedPools        int
	TotalShares        int
	RemainingShares    int
	CompletedPurchases int
	TotalRevenue       decimal.Decimal
	PerKind            []KindStats
}

// AdminService computes the derived dashboard view over pools and the
// ledger. Pure reads: it never locks against writers, so the numbers are an
// eventually-consistent snapshot.
type AdminService struct {
	repo AdminRepository
}

func NewAdminService(repo AdminRepository) *AdminService {
	return &AdminService{repo: repo}
}

func (s *AdminService) Stats(ctx context.Context) (Stats, error) {
	pools, err := s.repo.PoolTotals(ctx)
	if err != nil {
		return Stats{}, err
	}
	completed, err := s.repo.CompletedTotals(ctx)
	if err != nil {
		return Stats{}, err
	}
	perKind, err := s.repo.KindBreakdown(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		TotalPools:         pools.TotalPools,
		AvailablePools:     pools.AvailablePools,
		ClosedPools:        pools.ClosedPools,
		TotalShares:        pools.TotalShares,
		RemainingShares:    pools.RemainingShares,
		CompletedPurchases: completed.CompletedPurchases,
		TotalRevenue:       completed.TotalRevenue,
		PerKind:            perKind,
	}, nil
}
