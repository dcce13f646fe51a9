package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/memstore"
	"cofish.app/core/internal/store/storetest"
)

func testPolicy(attempts int) store.RetryPolicy {
	return store.RetryPolicy{MaxAttempts: attempts, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newService(s store.Store) *Service {
	return NewService(s, testPolicy(5), 100)
}

func TestCreditAndDebit(t *testing.T) {
	s := memstore.New()
	svc := newService(s)
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)

	got, err := svc.Credit(ctx, u.ID, 100, SourceCatch)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.PointsBalance)

	got, err = svc.Debit(ctx, u.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.PointsBalance)

	_, err = svc.Debit(ctx, u.ID, 41)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
	balance, err := svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	_, err = svc.Credit(ctx, u.ID, 0, SourceCatch)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.Debit(ctx, u.ID, -5)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.Credit(ctx, "nobody", 10, SourceCatch)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreditRetriesOnConflict(t *testing.T) {
	base := memstore.New()
	u := storetest.NewUser(t, base, 10)
	var calls atomic.Int32
	faulty := storetest.NewFaulty(base).OnUserUpdate(func(*store.User) error {
		if calls.Add(1) <= 2 {
			return common.ErrConcurrencyConflict
		}
		return nil
	})

	got, err := newService(faulty).Credit(context.Background(), u.ID, 5, SourceKarma)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.PointsBalance)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDebitGivesUpAfterMaxAttempts(t *testing.T) {
	base := memstore.New()
	u := storetest.NewUser(t, base, 500)
	var calls atomic.Int32
	faulty := storetest.NewFaulty(base).OnUserUpdate(func(*store.User) error {
		calls.Add(1)
		return common.ErrConcurrencyConflict
	})

	_, err := NewService(faulty, testPolicy(3), 100).Debit(context.Background(), u.ID, 100)
	require.ErrorIs(t, err, common.ErrConcurrencyConflict)
	assert.Equal(t, int32(3), calls.Load())

	balance, err := newService(base).Balance(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestConcurrentCreditsAreNotLost(t *testing.T) {
	s := memstore.New()
	u := storetest.NewUser(t, s, 0)
	svc := NewService(s, testPolicy(100), 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(context.Background(), u.ID, 10, SourceCatch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestDescriptions(t *testing.T) {
	assert.Equal(t, "Catch — Snook", CatchDescription("Snook"))
	assert.Equal(t, "Catch — (unknown species)", CatchDescription("  "))
	assert.Equal(t, "Precision TargetZone", PurchaseDescription(1))
	assert.Equal(t, "Standard TargetZone", PurchaseDescription(2))
	assert.Equal(t, "TargetZone", PurchaseDescription(3.5))
}

func TestComputeLedgerReconstructsBalances(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	svc := newService(s)
	u := storetest.NewUser(t, s, 0)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mkCatch := func(at time.Time, species string, base, karma int64, status store.VerificationStatus) {
		_, err := s.Catches().Create(ctx, &store.Catch{
			UserID: u.ID, CreatedAt: at, Species: species, BasePoints: base, KarmaPoints: karma, VerificationStatus: status,
		})
		require.NoError(t, err)
	}
	mkCatch(t0, "Snook", 100, 50, store.StatusAwarded)
	mkCatch(t0.Add(2*time.Hour), "", 100, 0, store.StatusAwarded)
	mkCatch(t0.Add(3*time.Hour), "Tarpon", 100, 0, store.StatusPending)
	mkCatch(t0.Add(4*time.Hour), "Redfish", 100, 0, store.StatusRejected)
	_, err := s.Purchases().Create(ctx, &store.InfoPurchase{
		UserID: u.ID, CreatedAt: t0.Add(time.Hour), RadiusMiles: 2, BaseCostPoints: 100, FinalCostPoints: 100,
	})
	require.NoError(t, err)
	// Стоимость не задана: берётся базовая
	_, err = s.Purchases().Create(ctx, &store.InfoPurchase{
		UserID: u.ID, CreatedAt: t0.Add(5 * time.Hour), RadiusMiles: 1, BaseCostPoints: 20,
	})
	require.NoError(t, err)

	// 150 - 100 + 100 - 20
	_, err = svc.Credit(ctx, u.ID, 130, SourceAdmin)
	require.NoError(t, err)

	l, err := svc.ComputeLedger(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(130), l.Balance)
	require.Len(t, l.Entries, 4)

	e := l.Entries
	assert.Equal(t, "Precision TargetZone", e[0].Description)
	assert.Equal(t, int64(-20), e[0].TotalPoints)
	assert.Equal(t, int64(130), e[0].NewBalance)

	assert.Equal(t, "Catch — (unknown species)", e[1].Description)
	assert.Equal(t, int64(150), e[1].NewBalance)

	assert.Equal(t, "Standard TargetZone", e[2].Description)
	assert.Equal(t, int64(50), e[2].NewBalance)

	assert.Equal(t, "Catch — Snook", e[3].Description)
	assert.Equal(t, int64(100), e[3].BasePoints)
	assert.Equal(t, int64(50), e[3].KarmaPoints)
	assert.Equal(t, int64(150), e[3].TotalPoints)
	assert.Equal(t, int64(150), e[3].NewBalance)

	// Баланс до самой старой записи ноль
	assert.Equal(t, int64(0), e[3].NewBalance-e[3].TotalPoints)
	for i := 0; i+1 < len(e); i++ {
		assert.Equal(t, e[i].NewBalance-e[i].TotalPoints, e[i+1].NewBalance)
		assert.False(t, e[i].CreatedAt.Before(e[i+1].CreatedAt))
	}
}

func TestBuildEntriesStableOnTies(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := BuildEntries(100,
		[]*store.Catch{{ID: "c1", CreatedAt: at, BasePoints: 100}, {ID: "c2", CreatedAt: at, BasePoints: 100}},
		[]*store.InfoPurchase{{ID: "p1", CreatedAt: at, FinalCostPoints: 100}},
	)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"c1", "c2", "p1"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, int64(100), entries[0].NewBalance)
	assert.Equal(t, int64(0), entries[1].NewBalance)
	assert.Equal(t, int64(-100), entries[2].NewBalance)
}

func TestComputeLedgerUnknownUser(t *testing.T) {
	_, err := newService(memstore.New()).ComputeLedger(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAuditFindsDrift(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	svc := newService(s)
	good := storetest.NewUser(t, s, 100)
	bad := storetest.NewUser(t, s, 999)
	for _, u := range []*store.User{good, bad} {
		_, err := s.Catches().Create(ctx, &store.Catch{UserID: u.ID, BasePoints: 100, VerificationStatus: store.StatusAwarded})
		require.NoError(t, err)
	}

	a, err := svc.Audit(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, a.OK())
	assert.Equal(t, 1, a.AwardedCatches)

	mismatches, err := svc.AuditAll(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, bad.ID, mismatches[0].UserID)
	assert.Equal(t, int64(899), mismatches[0].Drift)

	// Сверка не исправляет баланс
	balance, err := svc.Balance(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), balance)
}

func TestSetBalance(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	svc := newService(s)
	u := storetest.NewUser(t, s, 70)

	_, err := svc.SetBalance(ctx, u.ID, 10, u.Version+5)
	require.ErrorIs(t, err, common.ErrConcurrencyConflict)

	got, err := svc.SetBalance(ctx, u.ID, 10, u.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.PointsBalance)

	got, err = svc.SetBalance(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PointsBalance)

	_, err = svc.SetBalance(ctx, u.ID, -1, 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
