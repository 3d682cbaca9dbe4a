package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// ReservationRepository persists expiring share claims. Pool reads and
// adjustments are delegated to PoolRepository so the guarded update stays
// the only code path touching remaining_shares.
type ReservationRepository struct {
	pool  *pgxpool.Pool
	pools *PoolRepository
}

func NewReservationRepository(pool *pgxpool.Pool, pools *PoolRepository) *ReservationRepository {
	return &ReservationRepository{pool: pool, pools: pools}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) GetPoolForUpdate(ctx context.Context, poolID string) (domain.Pool, error) {
	return r.pools.GetPoolForUpdate(ctx, poolID)
}

func (r *ReservationRepository) AdjustRemaining(ctx context.Context, poolID string, delta int) (domain.Pool, error) {
	return r.pools.AdjustRemaining(ctx, poolID, delta)
}

const reservationColumns = `id, pool_id, buyer_id, shares, state, expires_at, created_at`

func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, pool_id, buyer_id, shares, state, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := pick(ctx, r.pool).Exec(ctx, stmt,
		res.ID,
		res.PoolID,
		res.BuyerID,
		res.Shares,
		res.State,
		res.ExpiresAt,
		res.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrPoolNotFound
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(pick(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) UpdateReservationState(ctx context.Context, id string, state domain.ReservationState) error {
	const stmt = `UPDATE reservations SET state = $2 WHERE id = $1`

	tag, err := pick(ctx, r.pool).Exec(ctx, stmt, id, state)
	if err != nil {
		return fmt.Errorf("update reservation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE state = 'active' AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`

	rows, err := pick(ctx, r.pool).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reservations: %w", rows.Err())
	}
	return out, nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID,
		&res.PoolID,
		&res.BuyerID,
		&res.Shares,
		&res.State,
		&res.ExpiresAt,
		&res.CreatedAt,
	)
	return res, err
}
