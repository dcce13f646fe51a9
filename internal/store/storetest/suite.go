// Package storetest содержит общий набор проверок драйверов хранилища
// и обёртку для внедрения сбоев в тестах сервисов.
package storetest

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/store"
)

// Run прогоняет проверки контракта store.Store.
// makeStore должен возвращать чистое изолированное хранилище.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, makeStore(t)) })
	t.Run("catches", func(t *testing.T) { testCatches(t, makeStore(t)) })
	t.Run("area", func(t *testing.T) { testArea(t, makeStore(t)) })
	t.Run("purchases", func(t *testing.T) { testPurchases(t, makeStore(t)) })
	t.Run("karma events", func(t *testing.T) { testKarmaEvents(t, makeStore(t)) })
}

// NewUser создаёт пользователя с уникальным ID.
func NewUser(t *testing.T, s store.Store, balance int64) *store.User {
	t.Helper()
	id := "u-" + uuid.NewString()
	u, err := s.Users().Create(context.Background(), &store.User{
		ID: id, Email: id + "@example.test", PointsBalance: balance,
	})
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(t, s, 0)
	assert.Equal(t, int64(1), u.Version)

	got, err := s.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	byEmail, err := s.Users().GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.Users().Create(ctx, &store.User{ID: u.ID, Email: "dup@example.test"})
	assert.ErrorIs(t, err, common.ErrConcurrencyConflict)

	_, err = s.Users().Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, common.ErrNotFound)

	got.PointsBalance = 250
	updated, err := s.Users().Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(250), updated.PointsBalance)
	assert.Equal(t, got.Version+1, updated.Version)

	// Устаревшая версия
	got.PointsBalance = 999
	_, err = s.Users().Update(ctx, got)
	assert.ErrorIs(t, err, common.ErrConcurrencyConflict)

	fresh, err := s.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), fresh.PointsBalance)

	page, err := s.Users().List(ctx, store.ListOptions{Limit: 1000})
	require.NoError(t, err)
	assert.NotEmpty(t, page.Items)
}

func testCatches(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(t, s, 0)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 5; i++ {
		c, err := s.Catches().Create(ctx, &store.Catch{
			UserID:             u.ID,
			CreatedAt:          base.Add(time.Duration(i) * time.Minute),
			Species:            "Snook",
			Lat:                store.Float(27.7),
			Lng:                store.Float(-82.6),
			BasePoints:         100,
			VerificationStatus: store.StatusPending,
			FishEmbedding:      []float64{0.1, 0.2, 0.3},
		})
		require.NoError(t, err)
		require.NotEmpty(t, c.ID)
		assert.Equal(t, int64(1), c.Version)
		ids = append(ids, c.ID)
	}

	got, err := s.Catches().Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.FishEmbedding)
	lat, lng, ok := got.Location()
	require.True(t, ok)
	assert.InDelta(t, 27.7, lat, 1e-9)
	assert.InDelta(t, -82.6, lng, 1e-9)

	got.VerificationStatus = store.StatusVerified
	got.AliveScore = store.Float(0.9)
	upd, err := s.Catches().Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, store.StatusVerified, upd.VerificationStatus)
	assert.Equal(t, got.Version+1, upd.Version)

	_, err = s.Catches().Update(ctx, got)
	assert.ErrorIs(t, err, common.ErrConcurrencyConflict)

	// Пагинация: новые первыми
	page, err := s.Catches().ListByUser(ctx, u.ID, store.ListOptions{Direction: store.Desc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.Equal(t, ids[3], page.Items[1].ID)
	require.NotEmpty(t, page.Next)

	all, err := store.Collect(ctx, store.ListOptions{Direction: store.Asc, Limit: 2}, func(ctx context.Context, o store.ListOptions) (store.Page[*store.Catch], error) {
		return s.Catches().ListByUser(ctx, u.ID, o)
	})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[0], all[0].ID)

	verified, err := s.Catches().ListByUser(ctx, u.ID, store.ListOptions{Statuses: []store.VerificationStatus{store.StatusVerified}})
	require.NoError(t, err)
	require.Len(t, verified.Items, 1)
	assert.Equal(t, ids[0], verified.Items[0].ID)

	window, err := s.Catches().ListByUser(ctx, u.ID, store.ListOptions{Since: base.Add(2 * time.Minute), Until: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, window.Items, 2)

	require.ErrorIs(t, s.Catches().Delete(ctx, ids[1], 42), common.ErrConcurrencyConflict)
	require.NoError(t, s.Catches().Delete(ctx, ids[1], 1))
	_, err = s.Catches().Get(ctx, ids[1])
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testArea(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, 0)
	other := NewUser(t, s, 0)
	// Случайный центр, чтобы прогоны на общей базе не видели чужие уловы
	center := geo.Point{Lat: -60 + rand.Float64()*120, Lng: -170 + rand.Float64()*340}
	now := time.Now().UTC()

	mk := func(userID string, p geo.Point, status store.VerificationStatus, age time.Duration) string {
		c, err := s.Catches().Create(ctx, &store.Catch{
			UserID: userID, CreatedAt: now.Add(-age), Lat: store.Float(p.Lat), Lng: store.Float(p.Lng),
			VerificationStatus: status,
		})
		require.NoError(t, err)
		return c.ID
	}

	near := mk(other.ID, geo.Destination(center.Lat, center.Lng, 0.5, 1), store.StatusAwarded, time.Hour)
	mk(other.ID, geo.Destination(center.Lat, center.Lng, 40, 1), store.StatusAwarded, time.Hour)
	mk(owner.ID, geo.Destination(center.Lat, center.Lng, 0.3, 2), store.StatusAwarded, time.Hour)
	mk(other.ID, geo.Destination(center.Lat, center.Lng, 0.4, 3), store.StatusPending, time.Hour)
	mk(other.ID, geo.Destination(center.Lat, center.Lng, 0.2, 4), store.StatusAwarded, 10*24*time.Hour)
	_, err := s.Catches().Create(ctx, &store.Catch{UserID: other.ID, VerificationStatus: store.StatusAwarded})
	require.NoError(t, err)

	found, err := s.Catches().ListInArea(ctx, store.AreaQuery{
		CenterLat: center.Lat, CenterLng: center.Lng, RadiusMiles: 2,
		Since:         now.Add(-7 * 24 * time.Hour),
		ExcludeUserID: owner.ID,
		Statuses:      []store.VerificationStatus{store.StatusAwarded},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, near, found[0].ID)

	_, err = s.Catches().ListInArea(ctx, store.AreaQuery{CenterLat: 100, CenterLng: 0, RadiusMiles: 1})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func testPurchases(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(t, s, 0)
	now := time.Now().UTC().Truncate(time.Millisecond)

	withIDs, err := s.Purchases().Create(ctx, &store.InfoPurchase{
		UserID: u.ID, CreatedAt: now.Add(-time.Hour), CenterLat: 1, CenterLng: 2, RadiusMiles: 2,
		BaseCostPoints: 100, FinalCostPoints: 100, AvgAgeHours: store.Float(12.5),
		IncludedCatchIDs: []string{"a", "b"},
	})
	require.NoError(t, err)
	degraded, err := s.Purchases().Create(ctx, &store.InfoPurchase{
		UserID: u.ID, CreatedAt: now, CenterLat: 1, CenterLng: 2, RadiusMiles: 1,
		SpeciesFilter: "redfish", BaseCostPoints: 300, FinalCostPoints: 300,
	})
	require.NoError(t, err)

	got, err := s.Purchases().Get(ctx, withIDs.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.IncludedCatchIDs)
	require.NotNil(t, got.AvgAgeHours)
	assert.InDelta(t, 12.5, *got.AvgAgeHours, 1e-9)

	got, err = s.Purchases().Get(ctx, degraded.ID)
	require.NoError(t, err)
	assert.Nil(t, got.IncludedCatchIDs)
	assert.Nil(t, got.AvgAgeHours)
	assert.Equal(t, "redfish", got.SpeciesFilter)

	page, err := s.Purchases().ListByUser(ctx, u.ID, store.ListOptions{Direction: store.Desc})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, degraded.ID, page.Items[0].ID)

	recent, err := s.Purchases().List(ctx, store.ListOptions{Since: now.Add(-time.Minute)})
	require.NoError(t, err)
	ids := make([]string, 0, len(recent.Items))
	for _, p := range recent.Items {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, degraded.ID)
	assert.NotContains(t, ids, withIDs.ID)

	require.NoError(t, s.Purchases().Delete(ctx, degraded.ID, degraded.Version))
	_, err = s.Purchases().Get(ctx, degraded.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testKarmaEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	helper := NewUser(t, s, 0)
	e, err := s.KarmaEvents().Create(ctx, &store.KarmaEvent{
		HelperUserID: helper.ID, BeneficiaryUserID: "b", SourceCatchID: "c1", BeneficiaryCatchID: "c2",
		Points: 50, DistanceMiles: 1.2,
	})
	require.NoError(t, err)

	page, err := s.KarmaEvents().ListByHelper(ctx, helper.ID, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(50), page.Items[0].Points)
	assert.InDelta(t, 1.2, page.Items[0].DistanceMiles, 1e-9)

	require.NoError(t, s.KarmaEvents().Delete(ctx, e.ID, e.Version))
	page, err = s.KarmaEvents().ListByHelper(ctx, helper.ID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
