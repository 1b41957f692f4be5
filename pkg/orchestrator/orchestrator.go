// Package orchestrator drives one run end to end: resolve the trigger,
// open the run, execute its stages, validate and classify the result,
// then signal the cache layer and alert on failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/executor"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
	"github.com/jdziat/simple-report-runs/pkg/validate"
)

// maxAlertErrors caps how many run errors go into an alert summary.
const maxAlertErrors = 3

// Invocation is one request to run a job.
type Invocation struct {
	// At is the wall-clock instant of the trigger. Zero means now.
	At time.Time
	// Override bypasses the window table with an explicit job type.
	Override string
	// Source tags the run for audit. Empty derives it from Override.
	Source core.TriggerSource
	// ScheduledDate replaces the attributed business date, for backfills.
	ScheduledDate string
}

// Report is the terminal outcome handed back to the caller.
type Report struct {
	RunID         string             `json:"run_id"`
	JobType       core.JobType       `json:"job_type"`
	ScheduledDate string             `json:"scheduled_date"`
	TriggerSource core.TriggerSource `json:"trigger_source"`
	Window        string             `json:"window"`
	Status        core.RunStatus     `json:"status"`
	Warnings      []string           `json:"warnings"`
	Errors        []string           `json:"errors"`
	// Tracked is false when the run could not be persisted.
	Tracked  bool             `json:"tracked"`
	Verdict  validate.Verdict `json:"verdict"`
	Duration time.Duration    `json:"duration"`
	Run      *core.Run        `json:"run"`
	Result   *core.JobResult  `json:"result,omitempty"`
}

// Orchestrator runs jobs. It is safe for concurrent use; each Trigger
// call owns one run.
type Orchestrator struct {
	resolver *schedule.Resolver
	registry *executor.Registry
	tracker  *tracking.Tracker
	cache    core.CacheSignaler
	alerter  core.Alerter

	policies      map[core.JobType]Policy
	deadline      time.Duration
	signalTimeout time.Duration
	log           zerolog.Logger
	now           func() time.Time

	mu         sync.RWMutex
	onStart    []func(context.Context, *core.Run)
	onComplete []func(context.Context, *Report)
	onFail     []func(context.Context, *Report, error)
	eventSubs  []chan core.Event
}

// New creates an Orchestrator. tracker may be nil or have no store, in
// which case runs execute untracked.
func New(resolver *schedule.Resolver, registry *executor.Registry, tracker *tracking.Tracker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:      resolver,
		registry:      registry,
		tracker:       tracker,
		policies:      make(map[core.JobType]Policy),
		deadline:      DefaultRunDeadline,
		signalTimeout: DefaultSignalTimeout,
		log:           zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// Resolver returns the trigger resolver.
func (o *Orchestrator) Resolver() *schedule.Resolver {
	return o.resolver
}

// Policy returns the policy for jobType.
func (o *Orchestrator) Policy(jobType core.JobType) Policy {
	return o.policies[jobType]
}

// Trigger resolves inv and executes the resulting run. It returns an error
// only when the trigger is rejected; nothing is persisted in that case.
// Every other outcome, including failed runs, is a Report.
func (o *Orchestrator) Trigger(ctx context.Context, inv Invocation) (*Report, error) {
	at := inv.At
	if at.IsZero() {
		at = o.now()
	}

	res, err := o.resolve(at, inv)
	if err != nil {
		o.log.Warn().Err(err).Str("override", inv.Override).Time("at", at).Msg("trigger rejected")
		o.Emit(&core.TriggerRejected{Override: inv.Override, Reason: err.Error(), Timestamp: o.now()})
		return nil, err
	}
	return o.execute(ctx, res), nil
}

func (o *Orchestrator) resolve(at time.Time, inv Invocation) (schedule.Resolution, error) {
	res, err := o.resolver.Resolve(at, inv.Override)
	if err != nil {
		return res, err
	}
	if inv.Source != "" {
		if !inv.Source.Valid() {
			return res, &core.ResolutionError{At: at, Override: inv.Override,
				Err: fmt.Errorf("%w: %q", core.ErrInvalidTriggerSource, inv.Source)}
		}
		res.Source = inv.Source
	}
	if inv.ScheduledDate != "" {
		if _, err := time.Parse(core.DateLayout, inv.ScheduledDate); err != nil {
			return res, &core.ResolutionError{At: at, Override: inv.Override,
				Err: fmt.Errorf("%w: %q", core.ErrInvalidScheduledDate, inv.ScheduledDate)}
		}
		res.ScheduledDate = inv.ScheduledDate
	}
	return res, nil
}

func (o *Orchestrator) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &o.log
}

// execute walks running -> {success | partial | failed}.
func (o *Orchestrator) execute(parent context.Context, res schedule.Resolution) (report *Report) {
	start := o.now()
	policy := o.policies[res.JobType]
	exec, lookupErr := o.registry.Get(res.JobType)

	var stages []core.StageName
	if exec != nil {
		stages = exec.Stages()
	}

	run := &core.Run{
		JobType:       res.JobType,
		ScheduledDate: res.ScheduledDate,
		TriggerSource: res.Source,
		Window:        res.Window,
		StartedAt:     start,
	}
	handle := o.tracker.StartRun(parent, run)

	log := o.log.With().
		Str("run_id", run.ID).
		Str("job_type", string(res.JobType)).
		Str("scheduled_date", res.ScheduledDate).
		Str("trigger_source", string(res.Source)).
		Logger()
	ctx := log.WithContext(parent)

	rec := tracking.NewRecorder(o.tracker, handle, run, stages,
		tracking.WithEmitter(o.Emit),
		tracking.WithRecorderLogger(log),
		tracking.WithClock(o.now),
	)

	defer func() {
		if r := recover(); r != nil {
			perr := &core.PanicError{Value: r, Stack: debug.Stack()}
			log.Error().Err(perr).Bytes("stack", perr.Stack).Msg("run panicked")
			report = o.finish(ctx, rec, res, start, nil, perr)
		}
	}()

	o.Emit(&core.RunStarted{Run: rec.Snapshot(), Timestamp: start})
	o.callStartHooks(ctx, rec.Snapshot())
	log.Info().Str("window", res.Window).Bool("tracked", handle != nil).Msg("run started")

	var (
		result  *core.JobResult
		execErr error
	)
	switch {
	case lookupErr != nil:
		execErr = lookupErr
	case handle == nil && policy.RequireTracking:
		execErr = core.ErrTrackingUnavailable
	default:
		if handle == nil {
			log.Warn().Msg("run tracking unavailable, continuing without a run record")
		}
		deadline := o.deadline
		if policy.Deadline > 0 {
			deadline = policy.Deadline
		}
		result, execErr = o.runExecutor(ctx, exec, rec, res, deadline)
	}

	return o.finish(ctx, rec, res, start, result, execErr)
}

// runExecutor runs exec under the run deadline. An executor that ignores
// its context is abandoned at the deadline.
func (o *Orchestrator) runExecutor(ctx context.Context, exec executor.Executor, rec *tracking.Recorder, res schedule.Resolution, deadline time.Duration) (*core.JobResult, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		result *core.JobResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &core.PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		result, err := exec.Run(ctx, rec, res)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", core.ErrRunDeadline, deadline)
		}
		return nil, ctx.Err()
	}
}

// finish classifies the run, completes it, and fires the side effects.
func (o *Orchestrator) finish(ctx context.Context, rec *tracking.Recorder, res schedule.Resolution, start time.Time, result *core.JobResult, execErr error) *Report {
	log := o.logger(ctx)

	// An abandoned executor may still hold rec; no stage opens from here on.
	rec.Seal()
	dangling := rec.CloseDangling(ctx)
	verdict := validate.Validate(result)

	var cause error
	switch {
	case execErr != nil:
		cause = execErr
	case len(dangling) > 0:
		cause = fmt.Errorf("%w: %v", core.ErrStagesLeftRunning, dangling)
	case !verdict.OK:
		cause = fmt.Errorf("%w: %s", core.ErrResultRejected, verdict.Reason)
	}
	if cause != nil {
		rec.Error(cause.Error())
	}

	status := validate.Reconcile(validate.Input{
		ExecErr:    execErr,
		Verdict:    verdict,
		MetaStatus: result.MetaStatus(),
		Warnings:   rec.Warnings(),
		Dangling:   dangling,
	})
	run := rec.Complete(ctx, status)
	duration := o.now().Sub(start)

	report := &Report{
		RunID:         run.ID,
		JobType:       run.JobType,
		ScheduledDate: run.ScheduledDate,
		TriggerSource: run.TriggerSource,
		Window:        run.Window,
		Status:        run.Status,
		Warnings:      []string(run.Warnings),
		Errors:        []string(run.Errors),
		Tracked:       rec.Tracked(),
		Verdict:       verdict,
		Duration:      duration,
		Run:           run,
		Result:        result,
	}

	ev := log.Info()
	if report.Status == core.RunFailed {
		ev = log.Error().Err(cause)
	}
	ev.Str("status", string(report.Status)).
		Dur("duration", duration).
		Int("warnings", len(report.Warnings)).
		Msg("run completed")

	o.Emit(&core.RunCompleted{Run: run, Duration: duration, Timestamp: o.now()})
	o.callEndHooks(ctx, report, cause)
	o.signalCache(ctx, report)
	if report.Status == core.RunFailed {
		o.alert(ctx, report)
	}
	return report
}

// signalCache warms the dashboard after usable runs and invalidates it
// after failed ones.
func (o *Orchestrator) signalCache(ctx context.Context, report *Report) {
	if o.cache == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.signalTimeout)
	defer cancel()

	key := core.RunKey{JobType: report.JobType, ScheduledDate: report.ScheduledDate}
	if report.Status == core.RunFailed {
		o.sideEffect(ctx, "cache invalidate", func() error {
			return o.cache.Invalidate(sctx, key)
		})
		return
	}

	snap := &core.Snapshot{
		Key:           key,
		RunID:         report.RunID,
		Status:        report.Status,
		TriggerSource: report.TriggerSource,
		Warnings:      report.Warnings,
		Errors:        report.Errors,
		Result:        report.Result,
		CompletedAt:   o.now(),
	}
	if report.Run != nil && report.Run.CompletedAt != nil {
		snap.CompletedAt = *report.Run.CompletedAt
	}
	o.sideEffect(ctx, "cache warm", func() error {
		return o.cache.Warm(sctx, snap)
	})
}

// alert sends a failure notice. No retry.
func (o *Orchestrator) alert(ctx context.Context, report *Report) {
	if o.alerter == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.signalTimeout)
	defer cancel()

	errs := report.Errors
	if len(errs) > maxAlertErrors {
		errs = append(errs[:maxAlertErrors:maxAlertErrors], fmt.Sprintf("... %d more", len(report.Errors)-maxAlertErrors))
	}
	a := core.Alert{
		RunID:         report.RunID,
		JobType:       report.JobType,
		ScheduledDate: report.ScheduledDate,
		TriggerSource: string(report.TriggerSource),
		Summary:       strings.Join(errs, "; "),
		Timestamp:     o.now(),
	}
	o.sideEffect(ctx, "alert", func() error {
		return o.alerter.Alert(sctx, a)
	})
}
