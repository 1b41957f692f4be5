package stats

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

var t0 = time.Date(2024, 1, 2, 12, 30, 0, 0, time.UTC)

type fakeSource struct {
	ch           chan core.Event
	unsubscribed atomic.Bool
}

func (f *fakeSource) Events() <-chan core.Event        { return f.ch }
func (f *fakeSource) Unsubscribe(ch <-chan core.Event) { f.unsubscribed.Store(true) }

type fakeLister struct {
	runs []*core.Run
	err  error
}

func (f *fakeLister) ListRuns(_ context.Context, filter core.RunFilter) ([]*core.Run, error) {
	if filter.Status != core.RunRunning {
		return nil, errors.New("unexpected filter")
	}
	return f.runs, f.err
}

func setupStats(t *testing.T) Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := NewGormStorage(db)
	require.NoError(t, s.MigrateStats(context.Background()))
	return s
}

func completed(jt core.JobType, status core.RunStatus, d time.Duration) core.Event {
	return &core.RunCompleted{Run: &core.Run{JobType: jt, Status: status}, Duration: d, Timestamp: t0}
}

func started(jt core.JobType) core.Event {
	return &core.RunStarted{Run: &core.Run{JobType: jt, Status: core.RunRunning}, Timestamp: t0}
}

func TestCollector_HandleAndFlush(t *testing.T) {
	store := setupStats(t)
	c := NewCollector(&fakeSource{}, store, WithClock(func() time.Time { return t0 }))
	ctx := context.Background()

	c.Handle(started(core.JobPreMarket))
	c.Handle(started(core.JobPreMarket))
	c.Handle(completed(core.JobPreMarket, core.RunSuccess, 2*time.Second))
	c.Handle(completed(core.JobPreMarket, core.RunPartial, time.Second))
	c.Handle(completed(core.JobEndOfDay, core.RunFailed, 500*time.Millisecond))
	c.Handle(&core.TriggerRejected{Override: "nightly", Reason: "unknown", Timestamp: t0})
	c.Flush(ctx)

	rows, err := store.History(ctx, core.JobPreMarket, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, t0.Truncate(time.Hour), rows[0].Timestamp.UTC())
	assert.Equal(t, int64(2), rows[0].Started)
	assert.Equal(t, int64(1), rows[0].Success)
	assert.Equal(t, int64(1), rows[0].Partial)
	assert.Equal(t, int64(3000), rows[0].DurationMs)

	rows, err = store.History(ctx, core.JobEndOfDay, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Failed)

	all, err := store.History(ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	var rejected int64
	for _, r := range all {
		rejected += r.Rejected
	}
	assert.Equal(t, int64(1), rejected)
}

func TestCollector_FlushAccumulatesInBucket(t *testing.T) {
	store := setupStats(t)
	now := t0
	c := NewCollector(&fakeSource{}, store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	c.Handle(completed(core.JobIntraday, core.RunSuccess, 0))
	c.Flush(ctx)
	now = t0.Add(10 * time.Minute)
	c.Handle(completed(core.JobIntraday, core.RunSuccess, 0))
	c.Flush(ctx)
	// Next bucket.
	now = t0.Add(time.Hour)
	c.Handle(completed(core.JobIntraday, core.RunSuccess, 0))
	c.Flush(ctx)

	rows, err := store.History(ctx, core.JobIntraday, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].Success)
	assert.Equal(t, int64(1), rows[1].Success)
}

func TestCollector_EmptyFlushWritesNothing(t *testing.T) {
	store := setupStats(t)
	c := NewCollector(&fakeSource{}, store)
	c.Handle(&core.StageStarted{RunID: "r1", Stage: core.StageInit, Timestamp: t0})
	c.Handle(&core.StageEnded{RunID: "r1", Stage: core.StageInit, Status: core.StageSuccess, Timestamp: t0})
	c.Flush(context.Background())

	rows, err := store.History(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCollector_StartConsumesEventsAndFlushesOnStop(t *testing.T) {
	store := setupStats(t)
	src := &fakeSource{ch: make(chan core.Event)}
	c := NewCollector(src, store, WithClock(func() time.Time { return t0 }), WithFlushInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	c.WaitReady()

	// Unbuffered sends return once the collector has received them.
	src.ch <- started(core.JobWeeklyReview)
	src.ch <- completed(core.JobWeeklyReview, core.RunSuccess, time.Second)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
	assert.True(t, src.unsubscribed.Load())

	rows, err := store.History(context.Background(), core.JobWeeklyReview, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Started)
	assert.Equal(t, int64(1), rows[0].Success)
}

func TestCollector_SnapshotRunning(t *testing.T) {
	store := setupStats(t)
	lister := &fakeLister{runs: []*core.Run{
		{JobType: core.JobIntraday, Status: core.RunRunning},
		{JobType: core.JobIntraday, Status: core.RunRunning},
		{JobType: core.JobSideRefresh, Status: core.RunRunning},
	}}
	c := NewCollector(&fakeSource{}, store, WithRunLister(lister), WithClock(func() time.Time { return t0 }))
	ctx := context.Background()

	c.snapshot(ctx)

	rows, err := store.History(ctx, core.JobIntraday, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Running)

	rows, err = store.History(ctx, core.JobPreMarket, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Running)

	// A later snapshot in the same bucket replaces the gauge.
	lister.runs = nil
	c.snapshot(ctx)
	rows, err = store.History(ctx, core.JobIntraday, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Running)
}

func TestCollector_SnapshotErrorIsSwallowed(t *testing.T) {
	store := setupStats(t)
	c := NewCollector(&fakeSource{}, store, WithRunLister(&fakeLister{err: errors.New("db down")}))
	c.snapshot(context.Background())

	rows, err := store.History(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCollector_Prune(t *testing.T) {
	store := setupStats(t)
	ctx := context.Background()
	old := t0.Add(-40 * 24 * time.Hour)
	require.NoError(t, store.AddCounters(ctx, core.JobEndOfDay, old, Counters{Success: 1}))
	require.NoError(t, store.AddCounters(ctx, core.JobEndOfDay, t0, Counters{Success: 1}))

	c := NewCollector(&fakeSource{}, store, WithClock(func() time.Time { return t0 }))
	c.prune(ctx)

	rows, err := store.History(ctx, core.JobEndOfDay, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, t0, rows[0].Timestamp.UTC())
}

func TestHistory_TimeRange(t *testing.T) {
	store := setupStats(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AddCounters(ctx, core.JobPreMarket, t0.Add(time.Duration(i)*time.Hour), Counters{Started: 1}))
	}

	rows, err := store.History(ctx, core.JobPreMarket, t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCollectorOptions(t *testing.T) {
	c := NewCollector(&fakeSource{}, nil)
	assert.Equal(t, time.Hour, c.bucket)
	assert.Equal(t, time.Minute, c.interval)
	assert.Equal(t, 30*24*time.Hour, c.retention)

	c = NewCollector(&fakeSource{}, nil, WithBucket(15*time.Minute), WithFlushInterval(0), WithRetention(0))
	assert.Equal(t, 15*time.Minute, c.bucket)
	assert.Equal(t, time.Minute, c.interval)
	assert.Zero(t, c.retention)
}
