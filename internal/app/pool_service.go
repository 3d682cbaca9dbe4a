package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/qrbn-app/qurban-crypto-app/internal/clock"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

type PoolRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreatePool(ctx context.Context, pool domain.Pool) error
	GetPool(ctx context.Context, id string) (domain.Pool, error)
	GetPoolForUpdate(ctx context.Context, id string) (domain.Pool, error)
	ListPools(ctx context.Context) ([]domain.Pool, error)
	SetPoolStatus(ctx context.Context, id string, status domain.PoolStatus) error
}

type PoolService struct {
	repo  PoolRepository
	clock clock.Clock
}

func NewPoolService(repo PoolRepository, clk clock.Clock) *PoolService {
	return &PoolService{
		repo:  repo,
		clock: clk,
	}
}

const defaultCurrency = "USDC"

type CreatePoolInput struct {
	Kind          domain.PoolKind
	Location      string
	PhotoURL      string
	TotalShares   int
	PricePerShare decimal.Decimal
	Currency      string
}

func (s *PoolService) CreatePool(ctx context.Context, in CreatePoolInput) (domain.Pool, error) {
	if !domain.ValidKind(in.Kind) {
		return domain.Pool{}, domain.ErrInvalidKind
	}
	if in.TotalShares <= 0 {
		return domain.Pool{}, domain.ErrInvalidShares
	}
	if !in.PricePerShare.IsPositive() {
		return domain.Pool{}, domain.ErrInvalidPrice
	}
	currency := in.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	pool := domain.Pool{
		ID:              newUUID(),
		Kind:            in.Kind,
		Location:        in.Location,
		PhotoURL:        in.PhotoURL,
		TotalShares:     in.TotalShares,
		RemainingShares: in.TotalShares,
		PricePerShare:   in.PricePerShare,
		Currency:        currency,
		Status:          domain.PoolStatusAvailable,
		CreatedAt:       s.clock.Now(),
	}

	if err := s.repo.CreatePool(ctx, pool); err != nil {
		return domain.Pool{}, err
	}
	return pool, nil
}

func (s *PoolService) GetPool(ctx context.Context, id string) (domain.Pool, error) {
	if id == "" {
		return domain.Pool{}, domain.ErrInvalidID
	}
	return s.repo.GetPool(ctx, id)
}

func (s *PoolService) ListPools(ctx context.Context) ([]domain.Pool, error) {
	return s.repo.ListPools(ctx)
}

// ClosePool marks the underlying animal as sacrificed/delivered. Closed is
// terminal; closing an already-closed pool is a no-op.
func (s *PoolService) ClosePool(ctx context.Context, id string) (domain.Pool, error) {
	if id == "" {
		return domain.Pool{}, domain.ErrInvalidID
	}

	var result domain.Pool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		pool, err := s.repo.GetPoolForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if pool.Status == domain.PoolStatusClosed {
			result = pool
			return nil
		}
		if err := s.repo.SetPoolStatus(txCtx, id, domain.PoolStatusClosed); err != nil {
			return err
		}
		pool.Status = domain.PoolStatusClosed
		result = pool
		return nil
	})
	if err != nil {
		return domain.Pool{}, err
	}
	return result, nil
}
