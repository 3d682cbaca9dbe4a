package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
	"github.com/qrbn-app/qurban-crypto-app/internal/testutil"
)

func TestCertificateRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewCertificateRepository(pool)
	ledger := NewLedgerRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	price := decimal.RequireFromString("35.50")
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedEntry := func(t *testing.T, ctx context.Context, entryID string) {
		t.Helper()
		poolID := testutil.InsertPool(t, ctx, pool, domain.PoolKindCow, 7, price)
		reservationID := testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			PoolID: poolID, BuyerID: "buyer-1", Shares: 3,
			State: domain.ReservationStateCommitted, ExpiresAt: now.Add(time.Minute),
		})
		err := ledger.AppendEntry(ctx, domain.LedgerEntry{
			ID: entryID, PoolID: poolID, BuyerID: "buyer-1", ReservationID: reservationID,
			Shares: 3, Amount: decimal.RequireFromString("106.50"), Currency: "USDC",
			ExternalRef: "tx-abc", Outcome: domain.LedgerOutcomeCompleted, CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("seed ledger entry: %v", err)
		}
	}

	certFor := func(id, entryID string) domain.Certificate {
		return domain.Certificate{
			ID:            id,
			LedgerEntryID: entryID,
			OwnerID:       "buyer-1",
			MetadataURI:   "https://qrbn.app/certificates/" + entryID,
			MintState:     domain.MintStatePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	t.Run("create and find by ledger entry", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		entryID := "cccccccc-0000-0000-0000-000000000001"
		seedEntry(t, ctx, entryID)

		c := certFor("eeeeeeee-0000-0000-0000-000000000001", entryID)
		if err := repo.CreateCertificate(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := repo.FindByLedgerEntry(ctx, entryID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got == nil || got.ID != c.ID {
			t.Fatalf("unexpected certificate: %+v", got)
		}
		if got.MintState != domain.MintStatePending || got.TokenRef != "" {
			t.Fatalf("unexpected mint state: %+v", got)
		}
	})

	t.Run("second certificate for the same entry is tolerated", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		entryID := "cccccccc-0000-0000-0000-000000000002"
		seedEntry(t, ctx, entryID)

		first := certFor("eeeeeeee-0000-0000-0000-000000000002", entryID)
		if err := repo.CreateCertificate(ctx, first); err != nil {
			t.Fatalf("first create: %v", err)
		}
		second := certFor("eeeeeeee-0000-0000-0000-000000000003", entryID)
		if err := repo.CreateCertificate(ctx, second); err != nil {
			t.Fatalf("expected duplicate create to be a no-op, got %v", err)
		}

		got, err := repo.FindByLedgerEntry(ctx, entryID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.ID != first.ID {
			t.Fatalf("expected the first certificate to win, got %s", got.ID)
		}
	})

	t.Run("find on a missing entry returns nil", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		got, err := repo.FindByLedgerEntry(ctx, "00000000-0000-0000-0000-000000000001")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("update persists token and attempts", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		entryID := "cccccccc-0000-0000-0000-000000000003"
		seedEntry(t, ctx, entryID)

		c := certFor("eeeeeeee-0000-0000-0000-000000000004", entryID)
		if err := repo.CreateCertificate(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}

		c.MintState = domain.MintStateMinted
		c.TokenRef = "token-1"
		c.Attempts = 1
		c.UpdatedAt = now.Add(time.Second)
		if err := repo.UpdateCertificate(ctx, c); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := repo.GetCertificateForUpdate(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.MintState != domain.MintStateMinted || got.TokenRef != "token-1" || got.Attempts != 1 {
			t.Fatalf("unexpected certificate: %+v", got)
		}

		missing := certFor("eeeeeeee-0000-0000-0000-000000000005", entryID)
		missing.ID = "00000000-0000-0000-0000-000000000001"
		if err := repo.UpdateCertificate(ctx, missing); err != domain.ErrCertificateNotFound {
			t.Fatalf("expected ErrCertificateNotFound, got %v", err)
		}
	})

	t.Run("mintable and failed filters", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		pending := certFor("eeeeeeee-0000-0000-0000-000000000006", "cccccccc-0000-0000-0000-000000000004")
		seedEntry(t, ctx, pending.LedgerEntryID)
		if err := repo.CreateCertificate(ctx, pending); err != nil {
			t.Fatalf("create pending: %v", err)
		}

		retryable := certFor("eeeeeeee-0000-0000-0000-000000000007", "cccccccc-0000-0000-0000-000000000005")
		seedEntry(t, ctx, retryable.LedgerEntryID)
		retryable.MintState = domain.MintStateFailed
		retryable.Attempts = 2
		if err := repo.CreateCertificate(ctx, retryable); err != nil {
			t.Fatalf("create retryable: %v", err)
		}

		exhausted := certFor("eeeeeeee-0000-0000-0000-000000000008", "cccccccc-0000-0000-0000-000000000006")
		seedEntry(t, ctx, exhausted.LedgerEntryID)
		exhausted.MintState = domain.MintStateFailed
		exhausted.Attempts = 5
		if err := repo.CreateCertificate(ctx, exhausted); err != nil {
			t.Fatalf("create exhausted: %v", err)
		}

		mintable, err := repo.ListMintable(ctx, 5, 10)
		if err != nil {
			t.Fatalf("list mintable: %v", err)
		}
		if len(mintable) != 2 {
			t.Fatalf("expected pending and retryable, got %d", len(mintable))
		}
		for _, c := range mintable {
			if c.ID == exhausted.ID {
				t.Fatal("exhausted certificate should not be mintable")
			}
		}

		failed, err := repo.ListFailed(ctx, 5)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(failed) != 1 || failed[0].ID != exhausted.ID {
			t.Fatalf("unexpected operator queue: %+v", failed)
		}
	})
}
