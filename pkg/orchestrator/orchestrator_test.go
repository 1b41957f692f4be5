package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/executor"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/storage"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
	"github.com/jdziat/simple-report-runs/pkg/validate"
)

func TestTrigger_ScheduledPreMarketSucceeds(t *testing.T) {
	store := newStore(t)
	cache := &fakeCache{}
	alerter := &fakeAlerter{}
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, signalsFor(symbols...), "")),
		newTracker(store),
		WithCache(cache), WithAlerter(alerter))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)

	assert.Equal(t, core.RunSuccess, report.Status)
	assert.Equal(t, core.JobPreMarket, report.JobType)
	assert.Equal(t, "2024-01-02", report.ScheduledDate)
	assert.Equal(t, core.SourceScheduled, report.TriggerSource)
	assert.Equal(t, "pre-market", report.Window)
	assert.True(t, report.Tracked)
	assert.True(t, report.Verdict.OK)
	assert.Empty(t, report.Errors)

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunSuccess, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.Len(t, run.Stages, 4)
	for i, name := range allStages {
		assert.Equal(t, name, run.Stages[i].Name)
		assert.Equal(t, core.StageSuccess, run.Stages[i].Status)
		assert.NotNil(t, run.Stages[i].EndedAt)
	}

	sum, err := store.GetSummary(context.Background(), core.RunKey{JobType: core.JobPreMarket, ScheduledDate: "2024-01-02"})
	require.NoError(t, err)
	assert.Equal(t, report.RunID, sum.RunID)
	assert.Equal(t, core.RunSuccess, sum.Status)

	require.Len(t, cache.warmed, 1)
	assert.Equal(t, report.RunID, cache.warmed[0].RunID)
	assert.Len(t, cache.warmed[0].Result.Signals, 5)
	assert.Empty(t, cache.invalidated)
	assert.Empty(t, alerter.alerts)
}

func TestTrigger_ZeroSignalsFails(t *testing.T) {
	store := newStore(t)
	cache := &fakeCache{}
	alerter := &fakeAlerter{}
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, nil, "")),
		newTracker(store),
		WithCache(cache), WithAlerter(alerter))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)

	assert.Equal(t, core.RunFailed, report.Status)
	assert.False(t, report.Verdict.OK)
	assert.Equal(t, validate.ReasonNoSignals, report.Verdict.Reason)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "result rejected")

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
	assert.NotEmpty(t, run.Errors)

	require.Len(t, alerter.alerts, 1)
	a := alerter.alerts[0]
	assert.Equal(t, report.RunID, a.RunID)
	assert.Equal(t, core.JobPreMarket, a.JobType)
	assert.Equal(t, "2024-01-02", a.ScheduledDate)
	assert.Equal(t, "scheduled", a.TriggerSource)
	assert.Contains(t, a.Summary, "signal set is empty")

	assert.Empty(t, cache.warmed)
	assert.Equal(t, []core.RunKey{{JobType: core.JobPreMarket, ScheduledDate: "2024-01-02"}}, cache.invalidated)
}

func TestTrigger_DegradedResultIsPartial(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, signalsFor(symbols...), "fell back to rules (low quality)")),
		newTracker(store))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)

	assert.Equal(t, core.RunPartial, report.Status)
	assert.Equal(t, []string{"fell back to rules (low quality)"}, report.Warnings)

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunPartial, run.Status)
	assert.Equal(t, core.StringList{"fell back to rules (low quality)"}, run.Warnings)
}

func TestTrigger_RejectedOverrideWritesNothing(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t), executor.NewRegistry(), newTracker(store))
	events := o.Events()
	defer o.Unsubscribe(events)

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt, Override: "bogus"})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, core.ErrUnknownJobType)

	var rerr *core.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "bogus", rerr.Override)

	runs, err := store.ListRuns(context.Background(), core.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, []string{"trigger.rejected"}, drain(events))
}

func TestTrigger_UnrecognizedSchedule(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t), executor.NewRegistry(), newTracker(store))

	_, err := o.Trigger(context.Background(), Invocation{At: preMarketAt.Add(time.Minute)})
	assert.ErrorIs(t, err, core.ErrUnrecognizedSchedule)

	runs, err := store.ListRuns(context.Background(), core.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTrigger_ManualOverride(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobEndOfDay, signalsFor(symbols...), "")),
		newTracker(store))

	// 03:00 matches no window; the override bypasses the table.
	report, err := o.Trigger(context.Background(), Invocation{
		At:       time.Date(2024, 1, 3, 3, 0, 0, 0, time.UTC),
		Override: "end-of-day",
	})
	require.NoError(t, err)
	assert.Equal(t, core.JobEndOfDay, report.JobType)
	assert.Equal(t, core.SourceManual, report.TriggerSource)
	assert.Equal(t, schedule.ManualWindow, report.Window)
	assert.Equal(t, "2024-01-03", report.ScheduledDate)
	assert.Equal(t, core.RunSuccess, report.Status)
}

func TestTrigger_ScheduledDateOverride(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobEndOfDay, signalsFor(symbols...), "")),
		newTracker(store))

	report, err := o.Trigger(context.Background(), Invocation{Override: "end-of-day", ScheduledDate: "2023-12-29"})
	require.NoError(t, err)
	assert.Equal(t, "2023-12-29", report.ScheduledDate)

	_, err = o.Trigger(context.Background(), Invocation{Override: "end-of-day", ScheduledDate: "29/12/2023"})
	assert.ErrorIs(t, err, core.ErrInvalidScheduledDate)

	_, err = o.Trigger(context.Background(), Invocation{Override: "end-of-day", Source: "cron"})
	assert.ErrorIs(t, err, core.ErrInvalidTriggerSource)

	runs, err := store.ListRuns(context.Background(), core.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestTrigger_SameKeyLastWriteWins(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, signalsFor(symbols...), "")),
		newTracker(store))

	first, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	second, err := o.Trigger(context.Background(), Invocation{At: preMarketAt.Add(2 * time.Hour), Override: "pre-market"})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	key := core.RunKey{JobType: core.JobPreMarket, ScheduledDate: "2024-01-02"}
	runs, err := store.ListRuns(context.Background(), core.RunFilter{JobType: key.JobType, ScheduledDate: key.ScheduledDate})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	sum, err := store.GetSummary(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, sum.RunID)
	assert.Equal(t, core.SourceManual, sum.TriggerSource)
}

func TestTrigger_StoreDownRunsUntracked(t *testing.T) {
	cache := &fakeCache{}
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, signalsFor(symbols...), "")),
		newTracker(downStore{}),
		WithCache(cache))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)

	assert.False(t, report.Tracked)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, core.RunSuccess, report.Status)
	assert.Empty(t, report.Warnings)
	require.Len(t, report.Run.Stages, 4)
	require.Len(t, cache.warmed, 1)
}

func TestTrigger_NilTracker(t *testing.T) {
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, signalsFor(symbols...), "")),
		nil)

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.False(t, report.Tracked)
	assert.Equal(t, core.RunSuccess, report.Status)
}

func TestTrigger_RequireTrackingFailsWithoutStore(t *testing.T) {
	ran := false
	exec := &funcExecutor{jobType: core.JobPreMarket, stages: allStages,
		run: func(context.Context, *tracking.Recorder, schedule.Resolution) (*core.JobResult, error) {
			ran = true
			return nil, nil
		}}
	alerter := &fakeAlerter{}
	o := New(newResolver(t), executor.NewRegistry(exec), newTracker(downStore{}),
		RequireTracking(core.JobPreMarket), WithAlerter(alerter))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)

	assert.False(t, ran, "executor must not run")
	assert.Equal(t, core.RunFailed, report.Status)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "run tracking unavailable")
	assert.Len(t, alerter.alerts, 1)
	assert.True(t, o.Policy(core.JobPreMarket).RequireTracking)
	assert.False(t, o.Policy(core.JobIntraday).RequireTracking)
}

func TestTrigger_DeadlineExceeded(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Ignores its context entirely.
	exec := &funcExecutor{jobType: core.JobPreMarket, stages: allStages,
		run: func(ctx context.Context, rec *tracking.Recorder, _ schedule.Resolution) (*core.JobResult, error) {
			_ = rec.Begin(ctx, core.StageInit)
			<-release
			return nil, nil
		}}
	o := New(newResolver(t), executor.NewRegistry(exec), newTracker(store), WithRunDeadline(50*time.Millisecond))

	start := time.Now()
	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, core.RunFailed, report.Status)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "run deadline exceeded")

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
	require.Len(t, run.Stages, 1)
	assert.Equal(t, core.StageFailed, run.Stages[0].Status, "dangling stage is closed")
}

func TestTrigger_AbandonedExecutorCannotOpenStages(t *testing.T) {
	store := newStore(t)
	gated := &gatedStore{RunStore: store, stage: core.StageInit,
		reached: make(chan struct{}), proceed: make(chan struct{})}
	began := make(chan error, 1)

	// Wakes up only once the run is being closed, then keeps going.
	exec := &funcExecutor{jobType: core.JobPreMarket, stages: allStages,
		run: func(ctx context.Context, rec *tracking.Recorder, _ schedule.Resolution) (*core.JobResult, error) {
			_ = rec.Begin(ctx, core.StageInit)
			select {
			case <-gated.reached:
			case <-time.After(5 * time.Second):
			}
			rec.End(ctx, core.StageInit, core.StageSuccess)
			began <- rec.Begin(ctx, core.StageDataFetch)
			close(gated.proceed)
			return nil, nil
		}}
	o := New(newResolver(t), executor.NewRegistry(exec), newTracker(gated), WithRunDeadline(50*time.Millisecond))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.ErrorIs(t, <-began, core.ErrRunCompleted)

	assert.Equal(t, core.RunFailed, report.Status)
	require.Len(t, report.Run.Stages, 1)
	assert.Equal(t, core.StageFailed, report.Run.Stages[0].Status)

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
	require.Len(t, run.Stages, 1)
	assert.Equal(t, core.StageFailed, run.Stages[0].Status)

	sum, err := store.GetSummary(context.Background(), report.Run.Key())
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, sum.Status)
}

func TestTrigger_LostStageEndStillCompletesRun(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, signalsFor(symbols...), "")),
		newTracker(lossyStore{RunStore: store, lose: core.StageDataFetch}))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunSuccess, report.Status)
	assert.True(t, report.Tracked)

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunSuccess, run.Status)
	require.Len(t, run.Stages, 4)
	assert.Equal(t, core.StageFailed, run.Stages[1].Status)
	assert.Equal(t, core.StringList{storage.StageEndNotRecorded}, run.Stages[1].Errors)
	assert.Equal(t, core.StageSuccess, run.Stages[2].Status)

	sum, err := store.GetSummary(context.Background(), report.Run.Key())
	require.NoError(t, err)
	assert.Equal(t, core.RunSuccess, sum.Status)
}

func TestTrigger_PolicyDeadline(t *testing.T) {
	exec := &funcExecutor{jobType: core.JobPreMarket, stages: allStages,
		run: func(ctx context.Context, _ *tracking.Recorder, _ schedule.Resolution) (*core.JobResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
	o := New(newResolver(t), executor.NewRegistry(exec), nil,
		WithPolicy(core.JobPreMarket, Policy{Deadline: 20 * time.Millisecond}))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, report.Status)
}

func TestTrigger_ExecutorPanicIsFailed(t *testing.T) {
	store := newStore(t)
	exec := &funcExecutor{jobType: core.JobPreMarket, stages: allStages,
		run: func(context.Context, *tracking.Recorder, schedule.Resolution) (*core.JobResult, error) {
			panic("boom")
		}}
	o := New(newResolver(t), executor.NewRegistry(exec), newTracker(store))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, report.Status)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "boom")

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
}

func TestTrigger_FailingStage(t *testing.T) {
	store := newStore(t)
	exec := executor.NewPipeline(core.JobPreMarket,
		executor.Step{Stage: core.StageInit, Do: func(context.Context, *executor.State) error { return nil }},
		executor.Step{Stage: core.StageDataFetch, Do: func(context.Context, *executor.State) error {
			return executor.ErrDataOutage
		}},
		executor.Step{Stage: core.StageAIAnalysis, Do: func(context.Context, *executor.State) error { return nil }},
	)
	o := New(newResolver(t), executor.NewRegistry(exec), newTracker(store))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, report.Status)

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, core.StageSuccess, run.Stages[0].Status)
	assert.Equal(t, core.StageFailed, run.Stages[1].Status)
}

func TestTrigger_UnregisteredJobType(t *testing.T) {
	store := newStore(t)
	o := New(newResolver(t), executor.NewRegistry(), newTracker(store))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, report.Status)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "no executor registered")

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
}

func TestTrigger_SideEffectFailuresDoNotPropagate(t *testing.T) {
	cache := &fakeCache{err: errors.New("cache down")}
	alerter := &fakeAlerter{err: errAlertDown}
	o := New(newResolver(t),
		executor.NewRegistry(reportPipeline(core.JobPreMarket, nil, "")),
		nil, WithCache(cache), WithAlerter(alerter))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, report.Status)
	assert.Len(t, alerter.alerts, 1)
	assert.Len(t, cache.invalidated, 1)

	alerter.panics = true
	report, err = o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, report.Status)
}

func TestTrigger_AlertSummaryIsCapped(t *testing.T) {
	alerter := &fakeAlerter{}
	exec := &funcExecutor{jobType: core.JobPreMarket, stages: allStages,
		run: func(_ context.Context, rec *tracking.Recorder, _ schedule.Resolution) (*core.JobResult, error) {
			for i := 0; i < 5; i++ {
				rec.Error("upstream error")
			}
			return nil, errors.New("gave up")
		}}
	o := New(newResolver(t), executor.NewRegistry(exec), nil, WithAlerter(alerter))

	report, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Len(t, report.Errors, 6)

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, 3, strings.Count(alerter.alerts[0].Summary, "upstream error"))
	assert.True(t, strings.HasSuffix(alerter.alerts[0].Summary, "... 3 more"))
}

func TestHooksAndEvents(t *testing.T) {
	o := New(newResolver(t),
		executor.NewRegistry(
			reportPipeline(core.JobPreMarket, signalsFor(symbols...), ""),
			reportPipeline(core.JobEndOfDay, nil, ""),
		),
		newTracker(newStore(t)))

	var started []*core.Run
	var completed, failed []*Report
	var failErr error
	o.OnRunStart(func(_ context.Context, r *core.Run) { started = append(started, r) })
	o.OnRunComplete(func(_ context.Context, r *Report) { completed = append(completed, r) })
	o.OnRunFail(func(_ context.Context, r *Report, err error) { failed = append(failed, r); failErr = err })
	o.OnRunComplete(func(context.Context, *Report) { panic("hook panic is contained") })

	events := o.Events()
	defer o.Unsubscribe(events)

	ok, err := o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"run.started",
		"stage.started", "stage.ended",
		"stage.started", "stage.ended",
		"stage.started", "stage.ended",
		"stage.started", "stage.ended",
		"run.completed",
	}, drain(events))

	bad, err := o.Trigger(context.Background(), Invocation{Override: "end-of-day"})
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, bad.Status)
	drain(events)

	require.Len(t, started, 2)
	assert.Equal(t, core.RunRunning, started[0].Status)
	require.Len(t, completed, 1)
	assert.Equal(t, ok.RunID, completed[0].RunID)
	require.Len(t, failed, 1)
	assert.Equal(t, bad.RunID, failed[0].RunID)
	assert.ErrorIs(t, failErr, core.ErrResultRejected)

	o.Unsubscribe(events)
	_, err = o.Trigger(context.Background(), Invocation{At: preMarketAt})
	require.NoError(t, err)
	assert.Empty(t, drain(events))
}

func TestNew_Defaults(t *testing.T) {
	o := New(newResolver(t), executor.NewRegistry(), nil)
	assert.Equal(t, DefaultRunDeadline, o.deadline)
	assert.Equal(t, DefaultSignalTimeout, o.signalTimeout)
	assert.NotNil(t, o.Resolver())

	o = New(newResolver(t), executor.NewRegistry(), nil, WithRunDeadline(0), WithSignalTimeout(-1))
	assert.Equal(t, DefaultRunDeadline, o.deadline)
	assert.Equal(t, DefaultSignalTimeout, o.signalTimeout)
}
