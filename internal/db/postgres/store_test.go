package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/storetest"
)

// Интеграционные тесты запускаются только при заданном COFISH_TEST_DATABASE_DSN.
func testPoolStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COFISH_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("COFISH_TEST_DATABASE_DSN не задан")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPoolDSN(ctx, dsn, 4, 0)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, RunMigrations(ctx, pool))
	// Повторный прогон миграций ничего не меняет
	require.NoError(t, RunMigrations(ctx, pool))
	return NewStore(pool)
}

func TestPostgresCompliance(t *testing.T) {
	s := testPoolStore(t)
	storetest.Run(t, func(t *testing.T) store.Store { return s })
}

func TestPostgresUpdateMissingRecord(t *testing.T) {
	s := testPoolStore(t)
	_, err := s.Users().Update(context.Background(), &store.User{ID: "missing-user", Version: 1})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMapErr(t *testing.T) {
	assert.Nil(t, mapErr("op", nil))
	assert.ErrorIs(t, mapErr("op", assert.AnError), common.ErrStoreFailure)
}

func TestWhereBuilder(t *testing.T) {
	w := &where{}
	w.add("user_id = " + w.arg("u1"))
	w.window(store.ListOptions{
		Since:    time.Unix(0, 0),
		Statuses: []store.VerificationStatus{store.StatusAwarded},
	})
	clause, limit, offset, err := pageClause(w, store.ListOptions{Limit: 10, Cursor: "20", Direction: store.Asc})
	require.NoError(t, err)

	assert.Equal(t, " WHERE user_id = $1 AND created_at >= $2 AND verification_status = ANY($3::text[])", w.sql())
	assert.Equal(t, " ORDER BY created_at ASC, id ASC LIMIT $4 OFFSET $5", clause)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 11, w.args[3])

	_, _, _, err = pageClause(&where{}, store.ListOptions{Cursor: "-1"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
