package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/config"
	"cofish.app/core/internal/events"
	"cofish.app/core/internal/features/admin"
	"cofish.app/core/internal/features/targetzone"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/storetest"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("ORACLE_URL", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LEDGER_BASE_BACKOFF", "1ms")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewMemory(t *testing.T) {
	a := newApp(t)
	assert.IsType(t, events.Nop{}, a.Events)
	assert.NotNil(t, a.Scheduler)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenStorePostgresUnreachable(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StoreDriver = config.StoreDriverPostgres
	cfg.DBHost = "127.0.0.1"
	cfg.DBPort = 1
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := OpenStore(ctx, cfg)
	assert.Error(t, err)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := memoryConfig(t)
	p := RetryPolicy(cfg)
	assert.Equal(t, cfg.LedgerMaxAttempts, p.MaxAttempts)
	assert.Equal(t, time.Millisecond, p.BaseBackoff)
}

// Полный путь: засев уловов, покупка зоны, новый улов покупателя рядом.
// Хук кармы должен начислить авторам засеянных уловов.
func TestPurchaseThenCatchAwardsKarma(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	center := geo.Point{Lat: 26.1, Lng: -81.8}

	helper := storetest.NewUser(t, a.Store, 0)
	buyer := storetest.NewUser(t, a.Store, 1000)

	seeded, err := a.Admin.SeedDummyCatches(ctx, admin.SeedInput{
		UserID: helper.ID, Center: center, Count: 3, RadiusMiles: 1,
	})
	require.NoError(t, err)
	require.Len(t, seeded.Created, 3)

	p, err := a.Zones.PurchaseTargetZone(ctx, buyer.ID, targetzone.PurchaseInput{
		CenterLat: center.Lat, CenterLng: center.Lng, RadiusMiles: 2, BaseCostPoints: 200,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, seeded.Created, p.IncludedCatchIDs)

	own, err := a.Store.Catches().Create(ctx, &store.Catch{
		UserID:             buyer.ID,
		CreatedAt:          time.Now().Add(time.Minute),
		Lat:                store.Float(center.Lat),
		Lng:                store.Float(center.Lng),
		VideoKey:           "v/own",
		BasePoints:         a.Config.CatchBasePoints,
		VerificationStatus: store.StatusVerified,
	})
	require.NoError(t, err)

	_, err = a.Catches.AwardPointsForVerifiedCatch(ctx, buyer.ID, own.ID)
	require.NoError(t, err)

	h, err := a.Ledger.Balance(ctx, helper.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*a.Config.CatchBasePoints+3*a.Config.KarmaPoints, h)

	b, err := a.Ledger.Balance(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000-200+a.Config.CatchBasePoints, b)

	audit, err := a.Ledger.Audit(ctx, helper.ID)
	require.NoError(t, err)
	assert.True(t, audit.OK(), "%+v", audit)
}
