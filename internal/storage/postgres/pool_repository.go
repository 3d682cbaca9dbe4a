package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

type PoolRepository struct {
	pool *pgxpool.Pool
}

func NewPoolRepository(pool *pgxpool.Pool) *PoolRepository {
	return &PoolRepository{pool: pool}
}

func (r *PoolRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const poolColumns = `id, kind, location, photo_url, total_shares, remaining_shares, price_per_share, currency, status, created_at`

func (r *PoolRepository) CreatePool(ctx context.Context, p domain.Pool) error {
	const stmt = `
INSERT INTO pools (id, kind, location, photo_url, total_shares, remaining_shares, price_per_share, currency, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := pick(ctx, r.pool).Exec(ctx, stmt,
		p.ID,
		p.Kind,
		p.Location,
		p.PhotoURL,
		p.TotalShares,
		p.RemainingShares,
		p.PricePerShare,
		p.Currency,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create pool: %w", err)
	}
	return nil
}

func (r *PoolRepository) GetPool(ctx context.Context, id string) (domain.Pool, error) {
	return r.getPool(ctx, id, false)
}

func (r *PoolRepository) GetPoolForUpdate(ctx context.Context, id string) (domain.Pool, error) {
	return r.getPool(ctx, id, true)
}

func (r *PoolRepository) getPool(ctx context.Context, id string, forUpdate bool) (domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPool(pick(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Pool{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Pool{}, domain.ErrPoolNotFound
		}
		return domain.Pool{}, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

func (r *PoolRepository) ListPools(ctx context.Context) ([]domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools ORDER BY created_at ASC`

	rows, err := pick(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate pools: %w", rows.Err())
	}
	return pools, nil
}

// AdjustRemaining is the single serialization point for share counts. The
// guarded update refuses results outside [0, total] and recomputes the
// available/full status in the same statement. Closed pools reject all
// adjustment.
func (r *PoolRepository) AdjustRemaining(ctx context.Context, poolID string, delta int) (domain.Pool, error) {
	const stmt = `
UPDATE pools
SET remaining_shares = remaining_shares + $2,
    status = CASE WHEN remaining_shares + $2 = 0 THEN 'full' ELSE 'available' END
WHERE id = $1
  AND status <> 'closed'
  AND remaining_shares + $2 BETWEEN 0 AND total_shares
RETURNING ` + poolColumns

	p, err := scanPool(pick(ctx, r.pool).QueryRow(ctx, stmt, poolID, delta))
	if err == nil {
		return p, nil
	}
	if isInvalidUUID(err) {
		return domain.Pool{}, domain.ErrInvalidID
	}
	if err != pgx.ErrNoRows {
		return domain.Pool{}, fmt.Errorf("adjust remaining: %w", err)
	}

	// No row matched: distinguish missing, closed, and out-of-range.
	current, lookupErr := r.getPool(ctx, poolID, false)
	if lookupErr != nil {
		return domain.Pool{}, lookupErr
	}
	if current.Status == domain.PoolStatusClosed {
		return domain.Pool{}, domain.ErrPoolClosed
	}
	return domain.Pool{}, domain.ErrConflict
}

func (r *PoolRepository) SetPoolStatus(ctx context.Context, id string, status domain.PoolStatus) error {
	const stmt = `UPDATE pools SET status = $2 WHERE id = $1`

	tag, err := pick(ctx, r.pool).Exec(ctx, stmt, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("set pool status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPoolNotFound
	}
	return nil
}

func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	err := row.Scan(
		&p.ID,
		&p.Kind,
		&p.Location,
		&p.PhotoURL,
		&p.TotalShares,
		&p.RemainingShares,
		&p.PricePerShare,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
	)
	return p, err
}
