package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

type PurchaseRepository struct {
	pool  *pgxpool.Pool
	pools *PoolRepository
}

func NewPurchaseRepository(pool *pgxpool.Pool, pools *PoolRepository) *PurchaseRepository {
	return &PurchaseRepository{pool: pool, pools: pools}
}

func (r *PurchaseRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *PurchaseRepository) GetPool(ctx context.Context, id string) (domain.Pool, error) {
	return r.pools.GetPool(ctx, id)
}

const purchaseColumns = `id, pool_id, buyer_id, shares, amount, currency, state, reservation_id, failure_reason, created_at, updated_at`

func (r *PurchaseRepository) CreatePurchase(ctx context.Context, p domain.Purchase) error {
	const stmt = `
INSERT INTO purchases (id, pool_id, buyer_id, shares, amount, currency, state, reservation_id, failure_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := pick(ctx, r.pool).Exec(ctx, stmt,
		p.ID,
		p.PoolID,
		p.BuyerID,
		p.Shares,
		p.Amount,
		p.Currency,
		p.State,
		nullable(p.ReservationID),
		nullable(p.FailureReason),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrPoolNotFound
		}
		return fmt.Errorf("create purchase: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	return r.getPurchase(ctx, id, false)
}

func (r *PurchaseRepository) GetPurchaseForUpdate(ctx context.Context, id string) (domain.Purchase, error) {
	return r.getPurchase(ctx, id, true)
}

func (r *PurchaseRepository) getPurchase(ctx context.Context, id string, forUpdate bool) (domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPurchase(pick(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Purchase{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Purchase{}, domain.ErrPurchaseNotFound
		}
		return domain.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

func (r *PurchaseRepository) UpdatePurchase(ctx context.Context, p domain.Purchase) error {
	const stmt = `
UPDATE purchases
SET state = $2, reservation_id = $3, failure_reason = $4, updated_at = $5
WHERE id = $1`

	tag, err := pick(ctx, r.pool).Exec(ctx, stmt,
		p.ID,
		p.State,
		nullable(p.ReservationID),
		nullable(p.FailureReason),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPurchaseNotFound
	}
	return nil
}

func (r *PurchaseRepository) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	const query = `
SELECT ` + purchaseColumns + `
FROM purchases
WHERE buyer_id = $1
ORDER BY created_at ASC`

	rows, err := pick(ctx, r.pool).Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var out []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate purchases: %w", rows.Err())
	}
	return out, nil
}

// LockPurchaseByReservation takes the row lock on the payment_pending
// purchase owning a reservation. The confirm path locks purchase before
// reservation; sweep callers take this lock first to keep the same order.
// A reservation without an owning purchase is fine.
func (r *PurchaseRepository) LockPurchaseByReservation(ctx context.Context, reservationID string) error {
	const query = `
SELECT id FROM purchases
WHERE reservation_id = $1 AND state = 'payment_pending'
FOR UPDATE`

	var id string
	err := pick(ctx, r.pool).QueryRow(ctx, query, reservationID).Scan(&id)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("lock purchase by reservation: %w", err)
	}
	return nil
}

// MarkPurchaseExpiredByReservation expires the payment_pending purchase
// owning a swept reservation. Reports whether a row changed.
func (r *PurchaseRepository) MarkPurchaseExpiredByReservation(ctx context.Context, reservationID string) (bool, error) {
	const stmt = `
UPDATE purchases
SET state = 'expired', updated_at = NOW()
WHERE reservation_id = $1 AND state = 'payment_pending'`

	tag, err := pick(ctx, r.pool).Exec(ctx, stmt, reservationID)
	if err != nil {
		return false, fmt.Errorf("mark purchase expired: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPurchase(row pgx.Row) (domain.Purchase, error) {
	var (
		p             domain.Purchase
		reservationID sql.NullString
		failureReason sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.PoolID,
		&p.BuyerID,
		&p.Shares,
		&p.Amount,
		&p.Currency,
		&p.State,
		&reservationID,
		&failureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	p.ReservationID = reservationID.String
	p.FailureReason = failureReason.String
	return p, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
