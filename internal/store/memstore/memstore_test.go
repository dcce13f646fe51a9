package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/storetest"
)

func TestCompliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	c, err := s.Catches().Create(ctx, &store.Catch{UserID: "u", FishEmbedding: []float64{1, 2}})
	require.NoError(t, err)

	c.FishEmbedding[0] = 42
	c.Species = "changed"

	got, err := s.Catches().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got.FishEmbedding)
	assert.Empty(t, got.Species)
}

func TestConcurrentUpdatesOnlyOneWins(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.Users().Create(ctx, &store.User{ID: "u1", Email: "u1@example.test"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			cp := *u
			cp.PointsBalance = n
			_, err := s.Users().Update(ctx, &cp)
			results <- err
		}(int64(i))
	}
	wg.Wait()
	close(results)

	ok, conflicts := 0, 0
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, common.ErrConcurrencyConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflicts)
}

func TestBadCursor(t *testing.T) {
	_, err := New().Catches().List(context.Background(), store.ListOptions{Cursor: "nope"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
