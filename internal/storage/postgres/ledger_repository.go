package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// LedgerRepository appends and reads finalized purchase outcomes. There is
// deliberately no update or delete: the table is the audit trail.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const ledgerColumns = `id, pool_id, buyer_id, reservation_id, shares, amount, currency, external_ref, outcome, created_at`

func (r *LedgerRepository) AppendEntry(ctx context.Context, e domain.LedgerEntry) error {
	const stmt = `
INSERT INTO ledger_entries (id, pool_id, buyer_id, reservation_id, shares, amount, currency, external_ref, outcome, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := pick(ctx, r.pool).Exec(ctx, stmt,
		e.ID,
		e.PoolID,
		e.BuyerID,
		e.ReservationID,
		e.Shares,
		e.Amount,
		e.Currency,
		e.ExternalRef,
		e.Outcome,
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReservation
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrPoolNotFound
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListEntriesByPool(ctx context.Context, poolID string) ([]domain.LedgerEntry, error) {
	const query = `
SELECT ` + ledgerColumns + `
FROM ledger_entries
WHERE pool_id = $1
ORDER BY created_at ASC`
	return r.list(ctx, query, poolID)
}

func (r *LedgerRepository) ListEntriesByBuyer(ctx context.Context, buyerID string) ([]domain.LedgerEntry, error) {
	const query = `
SELECT ` + ledgerColumns + `
FROM ledger_entries
WHERE buyer_id = $1
ORDER BY created_at ASC`
	return r.list(ctx, query, buyerID)
}

func (r *LedgerRepository) list(ctx context.Context, query string, arg any) ([]domain.LedgerEntry, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", rows.Err())
	}
	return out, nil
}

func scanLedgerEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(
		&e.ID,
		&e.PoolID,
		&e.BuyerID,
		&e.ReservationID,
		&e.Shares,
		&e.Amount,
		&e.Currency,
		&e.ExternalRef,
		&e.Outcome,
		&e.CreatedAt,
	)
	return e, err
}
