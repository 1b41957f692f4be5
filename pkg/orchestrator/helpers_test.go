package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/executor"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/storage"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
)

var (
	errStoreDown = errors.New("connection refused")
	errAlertDown = errors.New("webhook unreachable")

	// Tuesday 2024-01-02 12:30 UTC, the pre-market window.
	preMarketAt = time.Date(2024, 1, 2, 12, 30, 0, 0, time.UTC)
	symbols     = []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOG"}
	allStages   = []core.StageName{core.StageInit, core.StageDataFetch, core.StageAIAnalysis, core.StageStorage}
)

func newStore(t *testing.T) *storage.GormStorage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, storage.ConfigurePool(db))
	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// downStore fails every write.
type downStore struct {
	core.RunStore
}

func (downStore) CreateRun(context.Context, *core.Run) error { return errStoreDown }
func (downStore) StartStage(context.Context, *core.Stage) error { return errStoreDown }
func (downStore) EndStage(context.Context, string, core.StageName, core.StageStatus, []string, time.Time) error {
	return errStoreDown
}
func (downStore) CompleteRun(context.Context, string, core.RunStatus, []string, []string, time.Time) error {
	return errStoreDown
}

func newTracker(store core.RunStore) *tracking.Tracker {
	return tracking.New(store, tracking.WithRetryConfig(tracking.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}))
}

func newResolver(t *testing.T) *schedule.Resolver {
	t.Helper()
	r, err := schedule.NewResolver()
	require.NoError(t, err)
	return r
}

func signalsFor(units ...string) map[string]core.Signal {
	out := make(map[string]core.Signal, len(units))
	for _, u := range units {
		out[u] = core.Signal{Unit: u, Direction: core.Bullish, Confidence: 0.7, Source: "primary", Tier: "high"}
	}
	return out
}

// reportPipeline builds a four stage pipeline producing signals for units.
// degrade, when non-empty, is recorded as a warning during analysis.
func reportPipeline(jobType core.JobType, signals map[string]core.Signal, degrade string) *executor.Pipeline {
	return executor.NewPipeline(jobType,
		executor.Step{Stage: core.StageInit, Do: func(_ context.Context, st *executor.State) error {
			st.Symbols = append([]string(nil), symbols...)
			return nil
		}},
		executor.Step{Stage: core.StageDataFetch, Do: func(context.Context, *executor.State) error { return nil }},
		executor.Step{Stage: core.StageAIAnalysis, Do: func(_ context.Context, st *executor.State) error {
			st.Signals = signals
			if degrade != "" {
				st.Degrade("%s", degrade)
			}
			return nil
		}},
		executor.Step{Stage: core.StageStorage, Do: func(context.Context, *executor.State) error { return nil }},
	)
}

// funcExecutor is an Executor backed by a function.
type funcExecutor struct {
	jobType core.JobType
	stages  []core.StageName
	run     func(ctx context.Context, rec *tracking.Recorder, res schedule.Resolution) (*core.JobResult, error)
}

func (f *funcExecutor) JobType() core.JobType { return f.jobType }
func (f *funcExecutor) Stages() []core.StageName { return f.stages }
func (f *funcExecutor) Run(ctx context.Context, rec *tracking.Recorder, res schedule.Resolution) (*core.JobResult, error) {
	return f.run(ctx, rec, res)
}

type fakeCache struct {
	mu          sync.Mutex
	warmed      []*core.Snapshot
	invalidated []core.RunKey
	err         error
}

func (c *fakeCache) Warm(_ context.Context, s *core.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warmed = append(c.warmed, s)
	return c.err
}

func (c *fakeCache) Invalidate(_ context.Context, key core.RunKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, key)
	return c.err
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []core.Alert
	err    error
	panics bool
}

func (a *fakeAlerter) Alert(_ context.Context, alert core.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	if a.panics {
		panic("alerter exploded")
	}
	return a.err
}

func drain(ch <-chan core.Event) []string {
	var names []string
	for {
		select {
		case e := <-ch:
			names = append(names, core.EventName(e))
		default:
			return names
		}
	}
}

// lossyStore loses every end write for one stage.
type lossyStore struct {
	core.RunStore
	lose core.StageName
}

func (l lossyStore) EndStage(ctx context.Context, runID string, name core.StageName, status core.StageStatus, errs []string, endedAt time.Time) error {
	if name == l.lose {
		return errStoreDown
	}
	return l.RunStore.EndStage(ctx, runID, name, status, errs, endedAt)
}

// gatedStore holds the failed end write of stage until proceed closes.
// reached closes when that write arrives.
type gatedStore struct {
	core.RunStore
	stage   core.StageName
	once    sync.Once
	reached chan struct{}
	proceed chan struct{}
}

func (g *gatedStore) EndStage(ctx context.Context, runID string, name core.StageName, status core.StageStatus, errs []string, endedAt time.Time) error {
	if name == g.stage && status == core.StageFailed {
		g.once.Do(func() { close(g.reached) })
		select {
		case <-g.proceed:
		case <-time.After(5 * time.Second):
		}
	}
	return g.RunStore.EndStage(ctx, runID, name, status, errs, endedAt)
}
