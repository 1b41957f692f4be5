package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

const defaultWriteTimeout = 5 * time.Second

// RunHandle identifies a run that was persisted. A nil handle means
// tracking is disabled for the run; every Tracker method accepts it.
type RunHandle struct {
	RunID string
	Key   core.RunKey
}

// Option configures a Tracker.
type Option interface {
	apply(*Tracker)
}

type optionFunc func(*Tracker)

func (f optionFunc) apply(t *Tracker) { f(t) }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return optionFunc(func(t *Tracker) {
		t.log = log.With().Str("component", "tracker").Logger()
	})
}

// WithRetryConfig sets the retry policy for store writes.
func WithRetryConfig(cfg RetryConfig) Option {
	return optionFunc(func(t *Tracker) {
		if cfg.MaxAttempts < 1 {
			cfg.MaxAttempts = 1
		}
		t.retry = cfg
	})
}

// WithWriteTimeout bounds each store write, retries included.
func WithWriteTimeout(d time.Duration) Option {
	return optionFunc(func(t *Tracker) {
		if d > 0 {
			t.writeTimeout = d
		}
	})
}

// Tracker writes runs and stages to a core.RunStore. Failures are logged,
// never returned: tracking must not abort the job it observes.
type Tracker struct {
	store        core.RunStore
	log          zerolog.Logger
	retry        RetryConfig
	writeTimeout time.Duration
}

// New creates a Tracker. A nil store yields a Tracker that tracks nothing.
func New(store core.RunStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		log:          zerolog.Nop(),
		retry:        DefaultRetryConfig(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt.apply(t)
	}
	return t
}

// Enabled reports whether the tracker has a store to write to.
func (t *Tracker) Enabled() bool {
	return t != nil && t.store != nil
}

// write runs op under the retry policy. The context is detached from the
// caller's cancellation so a run that hit its deadline can still be closed.
func (t *Tracker) write(ctx context.Context, op func(context.Context) error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.writeTimeout)
	defer cancel()
	return retryWithBackoff(wctx, t.retry, func() error { return op(wctx) })
}

// StartRun persists run and returns its handle, or nil when the store is
// unavailable. run.ID and run.StartedAt are filled in either way.
func (t *Tracker) StartRun(ctx context.Context, run *core.Run) *RunHandle {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = core.RunRunning

	if !t.Enabled() {
		if t != nil {
			t.log.Warn().Str("job_type", string(run.JobType)).Msg("no run store configured, tracking disabled")
		}
		return nil
	}

	err := t.write(ctx, func(ctx context.Context) error {
		return t.store.CreateRun(ctx, run)
	})
	if err != nil {
		t.log.Warn().Err(err).
			Str("job_type", string(run.JobType)).
			Str("scheduled_date", run.ScheduledDate).
			Msg("run store unavailable, tracking disabled for this run")
		return nil
	}
	return &RunHandle{RunID: run.ID, Key: run.Key()}
}

// StartStage records that a stage opened.
func (t *Tracker) StartStage(ctx context.Context, h *RunHandle, stage *core.Stage) {
	if h == nil || !t.Enabled() {
		return
	}
	stage.RunID = h.RunID
	err := t.write(ctx, func(ctx context.Context) error {
		return t.store.StartStage(ctx, stage)
	})
	if err != nil {
		t.log.Warn().Err(err).Str("run_id", h.RunID).Str("stage", string(stage.Name)).Msg("failed to record stage start")
	}
}

// EndStage records that a stage closed. Closing a stage twice is a no-op.
func (t *Tracker) EndStage(ctx context.Context, h *RunHandle, name core.StageName, status core.StageStatus, errs []string, endedAt time.Time) {
	if h == nil || !t.Enabled() {
		return
	}
	err := t.write(ctx, func(ctx context.Context) error {
		return t.store.EndStage(ctx, h.RunID, name, status, errs, endedAt)
	})
	switch {
	case err == nil:
	case errors.Is(err, core.ErrStageNotOpen):
		t.log.Warn().Str("run_id", h.RunID).Str("stage", string(name)).Msg("stage already closed, ignoring")
	default:
		t.log.Warn().Err(err).Str("run_id", h.RunID).Str("stage", string(name)).Msg("failed to record stage end")
	}
}

// CompleteRun records the terminal status. It reports whether the store
// accepted the write.
func (t *Tracker) CompleteRun(ctx context.Context, h *RunHandle, status core.RunStatus, warnings, errs []string, completedAt time.Time) bool {
	if h == nil || !t.Enabled() {
		return false
	}
	err := t.write(ctx, func(ctx context.Context) error {
		return t.store.CompleteRun(ctx, h.RunID, status, warnings, errs, completedAt)
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, core.ErrRunCompleted):
		t.log.Warn().Str("run_id", h.RunID).Msg("run already completed, ignoring")
	default:
		t.log.Error().Err(err).Str("run_id", h.RunID).Str("status", string(status)).Msg("failed to record run completion")
	}
	return false
}
