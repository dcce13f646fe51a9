package catches

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/hooks"
	"cofish.app/core/internal/oracle"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/memstore"
	"cofish.app/core/internal/store/storetest"
)

type fakeOracle struct {
	score    oracle.FrameScore
	scoreErr error
	embed    []float64
	embedErr error
	calls    atomic.Int32
}

func (f *fakeOracle) ScoreFrame(context.Context, []byte) (oracle.FrameScore, error) {
	f.calls.Add(1)
	return f.score, f.scoreErr
}

func (f *fakeOracle) Embed(context.Context, string) ([]float64, error) {
	return f.embed, f.embedErr
}

var testRetry = store.RetryPolicy{MaxAttempts: 20, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func newService(s store.Store, o Oracle) (*Service, *ledger.Service) {
	l := ledger.NewService(s, testRetry, 100)
	return NewService(s, o, l, Settings{BasePoints: 100, Thresholds: DefaultThresholds(), Retry: testRetry}), l
}

func liveOracle(embedding ...float64) *fakeOracle {
	return &fakeOracle{
		score: oracle.FrameScore{AliveScore: 0.9, Confidence: 0.8, Species: "Snook", Fingerprint: "black lateral line"},
		embed: embedding,
	}
}

func loc(lat, lng float64) CreateInput {
	return CreateInput{VideoKey: "videos/a.mp4", Lat: store.Float(lat), Lng: store.Float(lng)}
}

func TestAggregateFrames(t *testing.T) {
	got, err := AggregateFrames([]oracle.FrameScore{
		{AliveScore: 0.9, Confidence: 0.6, Species: "Redfish", Fingerprint: "first"},
		{AliveScore: 0.6, Confidence: 0.9, Species: "Snook", Fingerprint: "second"},
		{AliveScore: 0.6, Confidence: 0.6, Species: "Snook"},
		{AliveScore: 0.5, Confidence: 0.5, Species: "Redfish", Note: "blurry"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.65, got.AliveScore, 1e-9)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)
	// Ничья 2:2, побеждает встреченный первым
	assert.Equal(t, "Redfish", got.Species)
	assert.Equal(t, "first", got.Fingerprint)
	assert.Equal(t, "blurry", got.Note)
	assert.Equal(t, 4, got.Frames)

	_, err = AggregateFrames(nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAggregateFramesDefaults(t *testing.T) {
	got, err := AggregateFrames([]oracle.FrameScore{{AliveScore: 1, Confidence: 1}})
	require.NoError(t, err)
	assert.Equal(t, "", got.Species)
	assert.Equal(t, defaultNote, got.Note)
}

func TestDecide(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, Verdict{Verified: true, IsAlive: true, IsUnique: true}, Decide(th, 0.7, 0.6, true))
	v := Decide(th, 0.69, 0.9, true)
	assert.False(t, v.Verified)
	assert.Equal(t, ReasonNotAlive, v.Reason)
	v = Decide(th, 0.9, 0.59, true)
	assert.False(t, v.IsAlive)
	v = Decide(th, 0.9, 0.9, false)
	assert.False(t, v.Verified)
	assert.Equal(t, ReasonDuplicate, v.Reason)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
}

func TestCreatePendingCatch(t *testing.T) {
	s := memstore.New()
	svc, _ := newService(s, nil)
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)

	c, err := svc.CreatePendingCatch(ctx, u.ID, loc(27.9, -82.5))
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, c.VerificationStatus)
	assert.Equal(t, int64(100), c.BasePoints)
	assert.Equal(t, int64(0), c.KarmaPoints)

	_, err = svc.CreatePendingCatch(ctx, u.ID, CreateInput{VideoKey: "k"})
	assert.NoError(t, err, "без координат допустимо")

	_, err = svc.CreatePendingCatch(ctx, u.ID, CreateInput{VideoKey: "k", Lat: store.Float(1)})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.CreatePendingCatch(ctx, u.ID, loc(91, 0))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.CreatePendingCatch(ctx, u.ID, CreateInput{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.CreatePendingCatch(ctx, "", loc(0, 0))
	assert.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestVerifiedCatchPayout(t *testing.T) {
	s := memstore.New()
	svc, l := newService(s, liveOracle(1, 0, 0))
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)

	c, err := svc.CreatePendingCatch(ctx, u.ID, loc(27.9, -82.5))
	require.NoError(t, err)

	v, err := svc.AnalyzeCatch(ctx, u.ID, c.ID, [][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, store.StatusVerified, v.Catch.VerificationStatus)
	assert.Equal(t, "Snook", v.Catch.Species)
	assert.Equal(t, []float64{1, 0, 0}, v.Catch.FishEmbedding)
	require.NotNil(t, v.Catch.AliveScore)
	assert.InDelta(t, 0.9, *v.Catch.AliveScore, 1e-9)

	awarded, err := svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAwarded, awarded.VerificationStatus)

	balance, err := l.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestAwardTwiceIsRejected(t *testing.T) {
	s := memstore.New()
	svc, l := newService(s, liveOracle())
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)
	c := verifiedCatch(t, s, u.ID, nil)

	_, err := svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID)
	require.NoError(t, err)
	_, err = svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID)
	require.ErrorIs(t, err, common.ErrCatchAlreadyAwarded)

	balance, err := l.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestConcurrentAwardsCreditOnce(t *testing.T) {
	s := memstore.New()
	svc, l := newService(s, liveOracle())
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)
	c := verifiedCatch(t, s, u.ID, nil)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, common.ErrCatchAlreadyAwarded)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	balance, err := l.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestAwardRequiresVerified(t *testing.T) {
	s := memstore.New()
	svc, _ := newService(s, liveOracle())
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)

	c, err := svc.CreatePendingCatch(ctx, u.ID, loc(1, 1))
	require.NoError(t, err)
	_, err = svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID)
	assert.ErrorIs(t, err, common.ErrCatchNotVerified)

	other := storetest.NewUser(t, s, 0)
	_, err = svc.AwardPointsForVerifiedCatch(ctx, other.ID, c.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAwardRevertsWhenCreditFails(t *testing.T) {
	base := memstore.New()
	u := storetest.NewUser(t, base, 0)
	c := verifiedCatch(t, base, u.ID, nil)
	faulty := storetest.NewFaulty(base).OnUserUpdate(func(*store.User) error {
		return common.ErrStoreFailure
	})
	svc, _ := newService(faulty, liveOracle())

	var hookRuns atomic.Int32
	svc.OnAwarded(hooks.Hook[*store.Catch]{Name: "count", Fn: func(context.Context, *store.Catch) error {
		hookRuns.Add(1)
		return nil
	}})

	_, err := svc.AwardPointsForVerifiedCatch(context.Background(), u.ID, c.ID)
	require.ErrorIs(t, err, common.ErrStoreFailure)

	got, err := base.Catches().Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusVerified, got.VerificationStatus)
	assert.Equal(t, int32(0), hookRuns.Load())
}

func TestAwardHooksDoNotAffectResult(t *testing.T) {
	s := memstore.New()
	svc, _ := newService(s, liveOracle())
	u := storetest.NewUser(t, s, 0)
	c := verifiedCatch(t, s, u.ID, nil)

	var seen []string
	svc.OnAwarded(hooks.Hook[*store.Catch]{Name: "fails", Fn: func(context.Context, *store.Catch) error {
		seen = append(seen, "fails")
		return errors.New("broker down")
	}})
	svc.OnAwarded(hooks.Hook[*store.Catch]{Name: "panics", Fn: func(context.Context, *store.Catch) error {
		seen = append(seen, "panics")
		panic("boom")
	}})
	svc.OnAwarded(hooks.Hook[*store.Catch]{Name: "after", Fn: func(_ context.Context, got *store.Catch) error {
		seen = append(seen, "after")
		assert.Equal(t, store.StatusAwarded, got.VerificationStatus)
		return nil
	}})

	awarded, err := svc.AwardPointsForVerifiedCatch(context.Background(), u.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAwarded, awarded.VerificationStatus)
	assert.Equal(t, []string{"fails", "panics", "after"}, seen)
}

func TestDuplicateRejection(t *testing.T) {
	s := memstore.New()
	u := storetest.NewUser(t, s, 0)
	first := verifiedCatch(t, s, u.ID, []float64{1, 0})

	// cos = 0.9 >= 0.75
	svc, _ := newService(s, liveOracle(0.9, math.Sqrt(1-0.81)))
	c, err := svc.CreatePendingCatch(context.Background(), u.ID, loc(1, 1))
	require.NoError(t, err)

	v, err := svc.AnalyzeCatch(context.Background(), u.ID, c.ID, [][]byte{{1}})
	require.NoError(t, err)
	assert.False(t, v.IsUnique)
	assert.False(t, v.Verified)
	assert.Equal(t, ReasonDuplicate, v.Reason)
	assert.Equal(t, first.ID, v.Uniqueness.SimilarCatchID)
	require.NotNil(t, v.Uniqueness.SimilarityScore)
	assert.InDelta(t, 0.9, *v.Uniqueness.SimilarityScore, 1e-9)
	assert.Equal(t, store.StatusRejected, v.Catch.VerificationStatus)
}

func TestUniquenessThresholds(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	owner := storetest.NewUser(t, s, 0)
	other := storetest.NewUser(t, s, 0)
	// cos 0.8 со своим, cos 0.8 с чужим
	verifiedCatch(t, s, owner.ID, []float64{0.8, 0.6})
	otherCatch := verifiedCatch(t, s, other.ID, []float64{0.8, -0.6})
	pending, err := s.Catches().Create(ctx, &store.Catch{UserID: owner.ID, VerificationStatus: store.StatusPending})
	require.NoError(t, err)

	l := ledger.NewService(s, testRetry, 100)
	th := DefaultThresholds()
	th.CrossUserEnabled = true
	svc := NewService(s, nil, l, Settings{Thresholds: th, Retry: testRetry})

	res, err := svc.CheckFishUniqueness(ctx, pending.ID, []float64{1, 0})
	require.NoError(t, err)
	assert.False(t, res.IsUnique, "0.8 >= 0.75 для своего улова")

	th.SameUser = 0.81
	svc = NewService(s, nil, l, Settings{Thresholds: th, Retry: testRetry})
	res, err = svc.CheckFishUniqueness(ctx, pending.ID, []float64{1, 0})
	require.NoError(t, err)
	assert.True(t, res.IsUnique, "0.8 < 0.85 для чужого улова")
	require.NotNil(t, res.SimilarityScore)
	assert.InDelta(t, 0.8, *res.SimilarityScore, 1e-9)

	th.CrossUser = 0.79
	svc = NewService(s, nil, l, Settings{Thresholds: th, Retry: testRetry})
	res, err = svc.CheckFishUniqueness(ctx, pending.ID, []float64{1, 0})
	require.NoError(t, err)
	assert.False(t, res.IsUnique)
	assert.Equal(t, otherCatch.ID, res.SimilarCatchID)
}

func TestUniquenessFailsOpen(t *testing.T) {
	s := memstore.New()
	u := storetest.NewUser(t, s, 0)
	verifiedCatch(t, s, u.ID, []float64{1, 0})

	o := liveOracle()
	o.embedErr = common.ErrUpstreamOracle
	svc, _ := newService(s, o)
	c, err := svc.CreatePendingCatch(context.Background(), u.ID, loc(1, 1))
	require.NoError(t, err)

	v, err := svc.AnalyzeCatch(context.Background(), u.ID, c.ID, [][]byte{{1}})
	require.NoError(t, err)
	assert.True(t, v.IsUnique)
	assert.True(t, v.Verified)

	res, err := svc.CheckFishUniqueness(context.Background(), c.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, Uniqueness{IsUnique: true}, res)
}

func TestAnalyzeOracleFailure(t *testing.T) {
	s := memstore.New()
	u := storetest.NewUser(t, s, 0)
	o := liveOracle()
	o.scoreErr = common.ErrUpstreamOracle
	svc, _ := newService(s, o)
	c, err := svc.CreatePendingCatch(context.Background(), u.ID, loc(1, 1))
	require.NoError(t, err)

	_, err = svc.AnalyzeCatch(context.Background(), u.ID, c.ID, [][]byte{{1}, {2}})
	require.ErrorIs(t, err, common.ErrUpstreamOracle)
	assert.Equal(t, int32(1), o.calls.Load())

	got, err := s.Catches().Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.VerificationStatus)

	noOracle, _ := newService(s, nil)
	_, err = noOracle.AnalyzeCatch(context.Background(), u.ID, c.ID, [][]byte{{1}})
	assert.ErrorIs(t, err, common.ErrUpstreamOracle)
}

func TestUpdateCatchAfterAnalysisStateRules(t *testing.T) {
	s := memstore.New()
	svc, _ := newService(s, nil)
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)

	pending, err := s.Catches().Create(ctx, &store.Catch{UserID: u.ID, BasePoints: 100, VerificationStatus: store.StatusPending})
	require.NoError(t, err)
	_, err = svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: pending.ID, Status: store.StatusAwarded})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	got, err := svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: pending.ID, AliveScore: 0.1, Confidence: 0.2})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.VerificationStatus, "пустой статус не меняется")

	// REJECTED окончателен
	rejected, err := svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: pending.ID, Status: store.StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, rejected.VerificationStatus)
	_, err = svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: pending.ID, AliveScore: 0.9, Confidence: 0.9, Status: store.StatusVerified})
	assert.ErrorIs(t, err, common.ErrCatchAlreadyAnalyzed)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	// VERIFIED не откатывается в REJECTED
	c := verifiedCatch(t, s, u.ID, nil)
	_, err = svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: c.ID, Status: store.StatusRejected})
	assert.ErrorIs(t, err, common.ErrCatchAlreadyAnalyzed)

	_, err = svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID)
	require.NoError(t, err)
	_, err = svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: c.ID, Status: store.StatusRejected})
	assert.ErrorIs(t, err, common.ErrCatchAlreadyAwarded)

	_, err = svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: "missing", Status: store.StatusRejected})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRejectedCatchCannotBeReanalyzed(t *testing.T) {
	s := memstore.New()
	o := liveOracle(1, 0)
	svc, l := newService(s, o)
	ctx := context.Background()
	u := storetest.NewUser(t, s, 0)

	c, err := svc.CreatePendingCatch(ctx, u.ID, loc(27.9, -82.5))
	require.NoError(t, err)
	_, err = svc.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{CatchID: c.ID, AliveScore: 0.1, Confidence: 0.9, Status: store.StatusRejected})
	require.NoError(t, err)

	_, err = svc.AnalyzeCatch(ctx, u.ID, c.ID, [][]byte{{1}})
	assert.ErrorIs(t, err, common.ErrCatchAlreadyAnalyzed)
	assert.Equal(t, int32(0), o.calls.Load(), "оракул не вызывается")

	_, err = svc.AwardPointsForVerifiedCatch(ctx, u.ID, c.ID)
	assert.ErrorIs(t, err, common.ErrCatchNotVerified)
	bal, err := l.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func verifiedCatch(t *testing.T, s store.Store, userID string, embedding []float64) *store.Catch {
	t.Helper()
	c, err := s.Catches().Create(context.Background(), &store.Catch{
		UserID:             userID,
		Lat:                store.Float(27.9),
		Lng:                store.Float(-82.5),
		BasePoints:         100,
		VerificationStatus: store.StatusVerified,
		FishEmbedding:      embedding,
	})
	require.NoError(t, err)
	return c
}
