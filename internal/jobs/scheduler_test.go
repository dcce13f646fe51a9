package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/features/targetzone"
)

type fakeAuditor struct {
	out []ledger.Audit
	err error
}

func (f fakeAuditor) AuditAll(context.Context) ([]ledger.Audit, error) { return f.out, f.err }

func TestPurgeQuotaUsesAppTimezone(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	q := targetzone.NewMemoryQuota()
	q.Consume("u", "2024-07-03", 3)
	q.Consume("u", "2024-07-04", 3)

	s := NewScheduler(q, fakeAuditor{}, loc)
	// 02:00 UTC 5 июля = 21:00 4 июля по EST
	s.now = func() time.Time { return time.Date(2024, 7, 5, 2, 0, 0, 0, time.UTC) }
	assert.Equal(t, 1, s.PurgeQuota())

	_, ok := q.Consume("u", "2024-07-04", 2)
	assert.True(t, ok)
	_, ok = q.Consume("u", "2024-07-04", 2)
	assert.False(t, ok, "сегодняшний счётчик сохранён")
}

func TestReconcile(t *testing.T) {
	s := NewScheduler(targetzone.NewMemoryQuota(), fakeAuditor{out: []ledger.Audit{{UserID: "a", Drift: 5}}}, nil)
	assert.Equal(t, 1, s.Reconcile(context.Background()))

	s = NewScheduler(targetzone.NewMemoryQuota(), fakeAuditor{err: errors.New("store down")}, nil)
	assert.Equal(t, 0, s.Reconcile(context.Background()))
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(targetzone.NewMemoryQuota(), fakeAuditor{}, time.UTC)
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
