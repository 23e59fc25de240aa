package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func TestPeriodKey(t *testing.T) {
	assert.Equal(t, "2026-03-15", PeriodKey(testNow, PeriodDay))
	assert.Equal(t, "2026-03", PeriodKey(testNow, PeriodMonth))

	// keys are UTC regardless of the wall clock's zone
	east := testNow.In(time.FixedZone("UTC+14", 14*3600))
	assert.Equal(t, "2026-03-15", PeriodKey(east, PeriodDay))
}

func TestTracker_AuthorizeDebitsBothPeriods(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 10, 100, 0)
	ctx := context.Background()

	res, err := tr.Authorize(ctx, "t1", 2.5, testNow)
	require.NoError(t, err)

	day, err := store.GetLedger(ctx, "t1", res.DayKey)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, day.SpentUSD, 1e-9)

	month, err := store.GetLedger(ctx, "t1", res.MonthKey)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, month.SpentUSD, 1e-9)
}

func TestTracker_DayDenialLeavesNoTrace(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 1, 100, 0)
	ctx := context.Background()

	_, err := tr.Authorize(ctx, "t1", 5, testNow)
	require.ErrorIs(t, err, ErrDenied)

	month, err := store.GetLedger(ctx, "t1", PeriodKey(testNow, PeriodMonth))
	require.NoError(t, err)
	assert.Nil(t, month)
}

func TestTracker_MonthDenialRollsBackDay(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 100, 1, 0)
	ctx := context.Background()

	_, err := tr.Authorize(ctx, "t1", 5, testNow)
	require.ErrorIs(t, err, ErrDenied)

	day, err := store.GetLedger(ctx, "t1", PeriodKey(testNow, PeriodDay))
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.Zero(t, day.SpentUSD)
}

func TestTracker_ReleaseRestoresSpend(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 10, 100, 0)
	ctx := context.Background()

	res, err := tr.Authorize(ctx, "t1", 4, testNow)
	require.NoError(t, err)
	require.NoError(t, tr.Release(ctx, res))

	day, err := store.GetLedger(ctx, "t1", res.DayKey)
	require.NoError(t, err)
	assert.Zero(t, day.SpentUSD)
	assert.Zero(t, day.RequestCount)
}

func TestTracker_ReconcileAppliesActualCost(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 10, 100, 0)
	ctx := context.Background()

	res, err := tr.Authorize(ctx, "t1", 4, testNow)
	require.NoError(t, err)
	require.NoError(t, tr.Reconcile(ctx, res, 1.5))

	day, err := store.GetLedger(ctx, "t1", res.DayKey)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, day.SpentUSD, 1e-9)
}

func TestTracker_ReconcileOverCeilingRaisesExceeded(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 5, 100, 0)
	ctx := context.Background()

	// the estimate fit but the response ran long; reconcile is applied anyway
	res, err := tr.Authorize(ctx, "t1", 3, testNow)
	require.NoError(t, err)
	require.NoError(t, tr.Reconcile(ctx, res, 8))

	day, err := store.GetLedger(ctx, "t1", res.DayKey)
	require.NoError(t, err)
	assert.InDelta(t, 8, day.SpentUSD, 1e-9)
	assert.True(t, day.Exceeded)

	// exceeded fails all future pre-checks for the period
	_, err = tr.Authorize(ctx, "t1", 0.01, testNow)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestTracker_PeriodRollover(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 5, 100, 0)
	ctx := context.Background()

	res, err := tr.Authorize(ctx, "t1", 5, testNow)
	require.NoError(t, err)
	require.NoError(t, tr.Reconcile(ctx, res, 5))

	_, err = tr.Authorize(ctx, "t1", 1, testNow)
	require.ErrorIs(t, err, ErrDenied)

	// a fresh daily ledger starts on the next UTC day
	tomorrow := testNow.Add(24 * time.Hour)
	res2, err := tr.Authorize(ctx, "t1", 1, tomorrow)
	require.NoError(t, err)
	require.NoError(t, tr.Reconcile(ctx, res2, 1))
}

func TestTracker_UserQuota(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 100, 1000, 2)
	ctx := context.Background()

	require.NoError(t, tr.CheckUserQuota(ctx, "t1", "u1", testNow))
	require.NoError(t, tr.CheckUserQuota(ctx, "t1", "u1", testNow))
	assert.ErrorIs(t, tr.CheckUserQuota(ctx, "t1", "u1", testNow), ErrUserQuotaExceeded)

	// other users and other tenants are unaffected
	assert.NoError(t, tr.CheckUserQuota(ctx, "t1", "u2", testNow))
	assert.NoError(t, tr.CheckUserQuota(ctx, "t2", "u1", testNow))

	// quota resets with the UTC day
	assert.NoError(t, tr.CheckUserQuota(ctx, "t1", "u1", testNow.Add(24*time.Hour)))
}

func TestTracker_UserQuotaDisabledWhenZero(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 100, 1000, 0)
	for range 10 {
		require.NoError(t, tr.CheckUserQuota(context.Background(), "t1", "u1", testNow))
	}
}

func TestStore_ConcurrentDebitsNeverOvershoot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	dayKey := PeriodKey(testNow, PeriodDay)

	const workers = 50
	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryDebit(ctx, "t1", dayKey, 1, 10)
			if err == nil && ok {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Equal(t, 10, len(granted))

	l, err := store.GetLedger(ctx, "t1", dayKey)
	require.NoError(t, err)
	assert.InDelta(t, 10, l.SpentUSD, 1e-9)
}
