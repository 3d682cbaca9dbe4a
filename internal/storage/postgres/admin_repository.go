package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qrbn-app/qurban-crypto-app/internal/app"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// AdminRepository runs the read-only aggregation queries behind the admin
// stats view. No locks: the numbers are an eventually-consistent snapshot
// taken concurrently with writers.
type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

func (r *AdminRepository) PoolTotals(ctx context.Context) (app.PoolTotals, error) {
	const query = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'available'),
	COUNT(*) FILTER (WHERE status = 'closed'),
	COALESCE(SUM(total_shares), 0),
	COALESCE(SUM(remaining_shares), 0)
FROM pools`

	var t app.PoolTotals
	err := r.pool.QueryRow(ctx, query).Scan(
		&t.TotalPools,
		&t.AvailablePools,
		&t.ClosedPools,
		&t.TotalShares,
		&t.RemainingShares,
	)
	if err != nil {
		return app.PoolTotals{}, fmt.Errorf("pool totals: %w", err)
	}
	return t, nil
}

func (r *AdminRepository) CompletedTotals(ctx context.Context) (app.CompletedTotals, error) {
	const query = `
SELECT COUNT(*), COALESCE(SUM(amount), 0)
FROM ledger_entries
WHERE outcome = 'completed'`

	var t app.CompletedTotals
	err := r.pool.QueryRow(ctx, query).Scan(&t.CompletedPurchases, &t.TotalRevenue)
	if err != nil {
		return app.CompletedTotals{}, fmt.Errorf("completed totals: %w", err)
	}
	return t, nil
}

func (r *AdminRepository) KindBreakdown(ctx context.Context) ([]app.KindStats, error) {
	const poolsQuery = `
SELECT kind, COUNT(*), COALESCE(SUM(total_shares), 0)
FROM pools
GROUP BY kind
ORDER BY kind`

	rows, err := r.pool.Query(ctx, poolsQuery)
	if err != nil {
		return nil, fmt.Errorf("kind breakdown pools: %w", err)
	}
	defer rows.Close()

	var out []app.KindStats
	index := make(map[domain.PoolKind]int)
	for rows.Next() {
		var ks app.KindStats
		if err := rows.Scan(&ks.Kind, &ks.Pools, &ks.TotalShares); err != nil {
			return nil, fmt.Errorf("scan kind pools: %w", err)
		}
		index[ks.Kind] = len(out)
		out = append(out, ks)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate kind pools: %w", rows.Err())
	}
	rows.Close()

	const salesQuery = `
SELECT p.kind, COALESCE(SUM(l.shares), 0), COALESCE(SUM(l.amount), 0)
FROM ledger_entries l
JOIN pools p ON p.id = l.pool_id
WHERE l.outcome = 'completed'
GROUP BY p.kind`

	salesRows, err := r.pool.Query(ctx, salesQuery)
	if err != nil {
		return nil, fmt.Errorf("kind breakdown sales: %w", err)
	}
	defer salesRows.Close()

	for salesRows.Next() {
		var ks app.KindStats
		if err := salesRows.Scan(&ks.Kind, &ks.CompletedShares, &ks.Revenue); err != nil {
			return nil, fmt.Errorf("scan kind sales: %w", err)
		}
		if i, ok := index[ks.Kind]; ok {
			out[i].CompletedShares = ks.CompletedShares
			out[i].Revenue = ks.Revenue
		}
	}
	if salesRows.Err() != nil {
		return nil, fmt.Errorf("iterate kind sales: %w", salesRows.Err())
	}
	return out, nil
}
