package app

import (
	"context"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/qrbn-app/qurban-crypto-app/internal/clock"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
	"github.com/qrbn-app/qurban-crypto-app/internal/metrics"
)

func TestReservationService_Hold(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute

	t.Run("deducts shares and records active reservation", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 7, Status: domain.PoolStatusAvailable})
		svc := NewReservationService(repo, clock.NewFixed(now))

		reservation, err := svc.Hold(context.Background(), "pool-1", "buyer-1", 3, ttl)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reservation.ID == "" {
			t.Fatalf("expected reservation ID to be set")
		}
		if reservation.State != domain.ReservationStateActive {
			t.Fatalf("expected state active, got %s", reservation.State)
		}
		if reservation.ExpiresAt != now.Add(ttl) {
			t.Fatalf("expected expires_at %v, got %v", now.Add(ttl), reservation.ExpiresAt)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 4 {
			t.Fatalf("expected 4 remaining shares, got %d", got)
		}
	})

	t.Run("taking the last share marks the pool full", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 2, RemainingShares: 1, Status: domain.PoolStatusAvailable})
		svc := NewReservationService(repo, clock.NewFixed(now))

		if _, err := svc.Hold(context.Background(), "pool-1", "buyer-1", 1, ttl); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := repo.pools["pool-1"].Status; got != domain.PoolStatusFull {
			t.Fatalf("expected pool status full, got %s", got)
		}
	})

	t.Run("rejects more shares than remaining", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 2, Status: domain.PoolStatusAvailable})
		svc := NewReservationService(repo, clock.NewFixed(now))

		_, err := svc.Hold(context.Background(), "pool-1", "buyer-1", 3, ttl)
		if err != domain.ErrInsufficientShares {
			t.Fatalf("expected ErrInsufficientShares, got %v", err)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 2 {
			t.Fatalf("expected shares unchanged, got %d", got)
		}
	})

	t.Run("rejects closed pool", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 7, Status: domain.PoolStatusClosed})
		svc := NewReservationService(repo, clock.NewFixed(now))

		_, err := svc.Hold(context.Background(), "pool-1", "buyer-1", 1, ttl)
		if err != domain.ErrPoolClosed {
			t.Fatalf("expected ErrPoolClosed, got %v", err)
		}
	})

	t.Run("unknown pool", func(t *testing.T) {
		repo := newFakeReservationRepo()
		svc := NewReservationService(repo, clock.NewFixed(now))

		_, err := svc.Hold(context.Background(), "missing", "buyer-1", 1, ttl)
		if err != domain.ErrPoolNotFound {
			t.Fatalf("expected ErrPoolNotFound, got %v", err)
		}
	})

	t.Run("missing buyer", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 7, Status: domain.PoolStatusAvailable})
		svc := NewReservationService(repo, clock.NewFixed(now))

		_, err := svc.Hold(context.Background(), "pool-1", "", 1, ttl)
		if err != domain.ErrBuyerRequired {
			t.Fatalf("expected ErrBuyerRequired, got %v", err)
		}
	})
}

// Concurrent holds against a pool with k shares must succeed exactly k
// times and never push remaining below zero.
func TestReservationService_Hold_Concurrent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 7, Status: domain.PoolStatusAvailable})
	svc := NewReservationService(repo, clock.NewFixed(now))

	const callers = 12
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Hold(context.Background(), "pool-1", "buyer", 1, time.Minute)
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch err {
		case nil:
			succeeded++
		case domain.ErrInsufficientShares:
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 7 {
		t.Fatalf("expected 7 successful holds, got %d", succeeded)
	}
	if rejected != callers-7 {
		t.Fatalf("expected %d rejections, got %d", callers-7, rejected)
	}
	if got := repo.pools["pool-1"].RemainingShares; got != 0 {
		t.Fatalf("expected 0 remaining shares, got %d", got)
	}
	if got := repo.pools["pool-1"].Status; got != domain.PoolStatusFull {
		t.Fatalf("expected pool status full, got %s", got)
	}
}

func TestReservationService_Commit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC)

	t.Run("commits an active reservation", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 4, Status: domain.PoolStatusAvailable})
		repo.addReservation(domain.Reservation{ID: "res-1", PoolID: "pool-1", BuyerID: "buyer-1", Shares: 3, State: domain.ReservationStateActive, ExpiresAt: now.Add(time.Minute)})
		svc := NewReservationService(repo, clock.NewFixed(now))

		reservation, err := svc.Commit(context.Background(), "res-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reservation.State != domain.ReservationStateCommitted {
			t.Fatalf("expected committed, got %s", reservation.State)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 4 {
			t.Fatalf("expected remaining unchanged, got %d", got)
		}
	})

	t.Run("committing twice is a no-op", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 4, Status: domain.PoolStatusAvailable})
		repo.addReservation(domain.Reservation{ID: "res-1", PoolID: "pool-1", BuyerID: "buyer-1", Shares: 3, State: domain.ReservationStateActive, ExpiresAt: now.Add(time.Minute)})
		svc := NewReservationService(repo, clock.NewFixed(now))

		if _, err := svc.Commit(context.Background(), "res-1"); err != nil {
			t.Fatalf("first commit: %v", err)
		}
		reservation, err := svc.Commit(context.Background(), "res-1")
		if err != nil {
			t.Fatalf("second commit: %v", err)
		}
		if reservation.State != domain.ReservationStateCommitted {
			t.Fatalf("expected committed, got %s", reservation.State)
		}
	})

	t.Run("lapsed reservation is released instead", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 4, Status: domain.PoolStatusAvailable})
		repo.addReservation(domain.Reservation{ID: "res-1", PoolID: "pool-1", BuyerID: "buyer-1", Shares: 3, State: domain.ReservationStateActive, ExpiresAt: now.Add(-time.Second)})
		svc := NewReservationService(repo, clock.NewFixed(now))

		reservation, err := svc.Commit(context.Background(), "res-1")
		if err != domain.ErrReservationExpired {
			t.Fatalf("expected ErrReservationExpired, got %v", err)
		}
		if reservation.State != domain.ReservationStateReleased {
			t.Fatalf("expected released, got %s", reservation.State)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 7 {
			t.Fatalf("expected shares credited back, got %d remaining", got)
		}
	})

	t.Run("unknown reservation", func(t *testing.T) {
		repo := newFakeReservationRepo()
		svc := NewReservationService(repo, clock.NewFixed(now))

		_, err := svc.Commit(context.Background(), "missing")
		if err != domain.ErrReservationNotFound {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})
}

func TestReservationService_Release(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC)

	t.Run("releasing credits shares back", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 4, Status: domain.PoolStatusAvailable})
		repo.addReservation(domain.Reservation{ID: "res-1", PoolID: "pool-1", BuyerID: "buyer-1", Shares: 3, State: domain.ReservationStateActive, ExpiresAt: now.Add(time.Minute)})
		svc := NewReservationService(repo, clock.NewFixed(now))

		reservation, err := svc.Release(context.Background(), "res-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reservation.State != domain.ReservationStateReleased {
			t.Fatalf("expected released, got %s", reservation.State)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 7 {
			t.Fatalf("expected 7 remaining shares, got %d", got)
		}
	})

	t.Run("releasing twice credits only once", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 4, Status: domain.PoolStatusAvailable})
		repo.addReservation(domain.Reservation{ID: "res-1", PoolID: "pool-1", BuyerID: "buyer-1", Shares: 3, State: domain.ReservationStateActive, ExpiresAt: now.Add(time.Minute)})
		svc := NewReservationService(repo, clock.NewFixed(now))

		if _, err := svc.Release(context.Background(), "res-1"); err != nil {
			t.Fatalf("first release: %v", err)
		}
		if _, err := svc.Release(context.Background(), "res-1"); err != nil {
			t.Fatalf("second release: %v", err)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 7 {
			t.Fatalf("expected 7 remaining shares, got %d", got)
		}
	})

	t.Run("committed reservation stays committed", func(t *testing.T) {
		repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 4, Status: domain.PoolStatusAvailable})
		repo.addReservation(domain.Reservation{ID: "res-1", PoolID: "pool-1", BuyerID: "buyer-1", Shares: 3, State: domain.ReservationStateCommitted, ExpiresAt: now.Add(time.Minute)})
		svc := NewReservationService(repo, clock.NewFixed(now))

		reservation, err := svc.Release(context.Background(), "res-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reservation.State != domain.ReservationStateCommitted {
			t.Fatalf("expected committed, got %s", reservation.State)
		}
		if got := repo.pools["pool-1"].RemainingShares; got != 4 {
			t.Fatalf("expected remaining unchanged, got %d", got)
		}
	})
}

func TestReservationService_SweepOne(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)

	repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 7, Status: domain.PoolStatusAvailable})
	svc := NewReservationService(repo, clk)

	reservation, err := svc.Hold(context.Background(), "pool-1", "buyer-1", 2, time.Second)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	released, err := svc.SweepOne(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("sweep before expiry: %v", err)
	}
	if released {
		t.Fatalf("expected no release before expiry")
	}

	clk.Advance(2 * time.Second)

	released, err = svc.SweepOne(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("sweep after expiry: %v", err)
	}
	if !released {
		t.Fatalf("expected release after expiry")
	}
	if got := repo.pools["pool-1"].RemainingShares; got != 7 {
		t.Fatalf("expected shares back, got %d remaining", got)
	}

	released, err = svc.SweepOne(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("repeat sweep: %v", err)
	}
	if released {
		t.Fatalf("expected repeat sweep to be a no-op")
	}
}

// An expiry increments the counter exactly where the shares are released,
// whichever path gets there first; re-sweeping a released reservation never
// counts again. Not parallel: it reads a process-wide counter.
func TestReservationService_ExpiryCountedAtRelease(t *testing.T) {
	start := time.Date(2026, 5, 26, 9, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)

	repo := newFakeReservationRepo(domain.Pool{ID: "pool-1", TotalShares: 7, RemainingShares: 7, Status: domain.PoolStatusAvailable})
	svc := NewReservationService(repo, clk)

	ctx := context.Background()
	first, err := svc.Hold(ctx, "pool-1", "buyer-1", 2, time.Second)
	if err != nil {
		t.Fatalf("first hold: %v", err)
	}
	second, err := svc.Hold(ctx, "pool-1", "buyer-2", 2, time.Second)
	if err != nil {
		t.Fatalf("second hold: %v", err)
	}

	clk.Advance(2 * time.Second)
	before := promtestutil.ToFloat64(metrics.ReservationsExpired)

	if _, err := svc.Commit(ctx, first.ID); err != domain.ErrReservationExpired {
		t.Fatalf("expected ErrReservationExpired, got %v", err)
	}
	if released, err := svc.SweepOne(ctx, first.ID); err != nil || released {
		t.Fatalf("expected sweep of released reservation to be a no-op, got %v %v", released, err)
	}

	if released, err := svc.SweepOne(ctx, second.ID); err != nil || !released {
		t.Fatalf("expected second reservation swept, got %v %v", released, err)
	}
	if _, err := svc.Commit(ctx, second.ID); err != domain.ErrReservationExpired {
		t.Fatalf("expected ErrReservationExpired after sweep, got %v", err)
	}

	if got := promtestutil.ToFloat64(metrics.ReservationsExpired) - before; got != 2 {
		t.Fatalf("expected 2 expiries counted, got %v", got)
	}
}

// fakeReservationRepo serializes transactions behind a mutex the way the
// real store serializes on the pool row lock.
type fakeReservationRepo struct {
	mu           sync.Mutex
	pools        map[string]*domain.Pool
	reservations map[string]*domain.Reservation
}

func newFakeReservationRepo(pools ...domain.Pool) *fakeReservationRepo {
	repo := &fakeReservationRepo{
		pools:        make(map[string]*domain.Pool),
		reservations: make(map[string]*domain.Reservation),
	}
	for i := range pools {
		p := pools[i]
		repo.pools[p.ID] = &p
	}
	return repo
}

func (f *fakeReservationRepo) addReservation(r domain.Reservation) {
	f.reservations[r.ID] = &r
}

func (f *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeReservationRepo) GetPoolForUpdate(_ context.Context, poolID string) (domain.Pool, error) {
	pool, ok := f.pools[poolID]
	if !ok {
		return domain.Pool{}, domain.ErrPoolNotFound
	}
	return *pool, nil
}

func (f *fakeReservationRepo) AdjustRemaining(_ context.Context, poolID string, delta int) (domain.Pool, error) {
	pool, ok := f.pools[poolID]
	if !ok {
		return domain.Pool{}, domain.ErrPoolNotFound
	}
	if pool.Status == domain.PoolStatusClosed {
		return domain.Pool{}, domain.ErrPoolClosed
	}
	next := pool.RemainingShares + delta
	if next < 0 || next > pool.TotalShares {
		return domain.Pool{}, domain.ErrConflict
	}
	pool.RemainingShares = next
	if next == 0 {
		pool.Status = domain.PoolStatusFull
	} else {
		pool.Status = domain.PoolStatusAvailable
	}
	return *pool, nil
}

func (f *fakeReservationRepo) CreateReservation(_ context.Context, r domain.Reservation) error {
	f.reservations[r.ID] = &r
	return nil
}

func (f *fakeReservationRepo) GetReservationForUpdate(_ context.Context, id string) (domain.Reservation, error) {
	reservation, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return *reservation, nil
}

func (f *fakeReservationRepo) UpdateReservationState(_ context.Context, id string, state domain.ReservationState) error {
	reservation, ok := f.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	reservation.State = state
	return nil
}

func (f *fakeReservationRepo) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, r := range f.reservations {
		if r.State == domain.ReservationStateActive && r.Expired(now) {
			out = append(out, *r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
