package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

type CertificateRepository struct {
	pool *pgxpool.Pool
}

func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

func (r *CertificateRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const certificateColumns = `id, ledger_entry_id, owner_id, metadata_uri, token_ref, mint_state, attempts, created_at, updated_at`

func (r *CertificateRepository) CreateCertificate(ctx context.Context, c domain.Certificate) error {
	const stmt = `
INSERT INTO certificates (id, ledger_entry_id, owner_id, metadata_uri, token_ref, mint_state, attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := pick(ctx, r.pool).Exec(ctx, stmt,
		c.ID,
		c.LedgerEntryID,
		c.OwnerID,
		c.MetadataURI,
		nullable(c.TokenRef),
		c.MintState,
		c.Attempts,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// One certificate per ledger entry; a racing confirm retry
			// already created it.
			return nil
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) GetCertificateForUpdate(ctx context.Context, id string) (domain.Certificate, error) {
	const query = `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1 FOR UPDATE`

	c, err := scanCertificate(pick(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Certificate{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Certificate{}, domain.ErrCertificateNotFound
		}
		return domain.Certificate{}, fmt.Errorf("get certificate: %w", err)
	}
	return c, nil
}

func (r *CertificateRepository) FindByLedgerEntry(ctx context.Context, ledgerEntryID string) (*domain.Certificate, error) {
	const query = `SELECT ` + certificateColumns + ` FROM certificates WHERE ledger_entry_id = $1`

	c, err := scanCertificate(pick(ctx, r.pool).QueryRow(ctx, query, ledgerEntryID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("find certificate by ledger entry: %w", err)
	}
	return &c, nil
}

func (r *CertificateRepository) UpdateCertificate(ctx context.Context, c domain.Certificate) error {
	const stmt = `
UPDATE certificates
SET token_ref = $2, mint_state = $3, attempts = $4, updated_at = $5
WHERE id = $1`

	tag, err := pick(ctx, r.pool).Exec(ctx, stmt,
		c.ID,
		nullable(c.TokenRef),
		c.MintState,
		c.Attempts,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func (r *CertificateRepository) ListMintable(ctx context.Context, maxAttempts, limit int) ([]domain.Certificate, error) {
	const query = `
SELECT ` + certificateColumns + `
FROM certificates
WHERE mint_state = 'pending' OR (mint_state = 'failed' AND attempts < $1)
ORDER BY created_at ASC
LIMIT $2`
	return r.list(ctx, query, maxAttempts, limit)
}

func (r *CertificateRepository) ListFailed(ctx context.Context, minAttempts int) ([]domain.Certificate, error) {
	const query = `
SELECT ` + certificateColumns + `
FROM certificates
WHERE mint_state = 'failed' AND attempts >= $1
ORDER BY updated_at ASC`
	return r.list(ctx, query, minAttempts)
}

func (r *CertificateRepository) list(ctx context.Context, query string, args ...any) ([]domain.Certificate, error) {
	rows, err := pick(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []domain.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate certificates: %w", rows.Err())
	}
	return out, nil
}

func scanCertificate(row pgx.Row) (domain.Certificate, error) {
	var (
		c        domain.Certificate
		tokenRef sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.LedgerEntryID,
		&c.OwnerID,
		&c.MetadataURI,
		&tokenRef,
		&c.MintState,
		&c.Attempts,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	c.TokenRef = tokenRef.String
	return c, err
}
