package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
	intctx "github.com/jdziat/simple-report-runs/pkg/internal/context"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/security"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
)

// ErrDataOutage is returned when a required data source produced nothing
// for any unit.
var ErrDataOutage = errors.New("executor: required data source unavailable")

// ErrNoUnits is returned when a run has nothing to operate on.
var ErrNoUnits = errors.New("executor: no units configured")

// Executor runs one job type.
type Executor interface {
	JobType() core.JobType
	// Stages is the declared stage order for the job type.
	Stages() []core.StageName
	Run(ctx context.Context, rec *tracking.Recorder, res schedule.Resolution) (*core.JobResult, error)
}

// Config wires collaborators into the standard executors.
type Config struct {
	Market       MarketData
	News         NewsFeed
	Primary      Model
	Secondary    Model
	SideChannels []SideChannel
	Sink         ReportSink

	// Watchlist is the default set of symbols.
	Watchlist []string

	// CollaboratorTimeout bounds data calls. Default 10s.
	CollaboratorTimeout time.Duration
	// ModelTimeout bounds each model call. Default 2m.
	ModelTimeout time.Duration
	// FetchConcurrency bounds concurrent per-symbol history fetches. Default 4.
	FetchConcurrency int
	// HistoryDays is how many daily bars to request. Default 60.
	HistoryDays int
	// DisableHeuristics removes the rule-based candidates from analysis
	// chains, so only models can produce signals.
	DisableHeuristics bool
}

func (c Config) withDefaults() Config {
	if c.CollaboratorTimeout <= 0 {
		c.CollaboratorTimeout = 10 * time.Second
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 2 * time.Minute
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	c.FetchConcurrency = security.ClampConcurrency(c.FetchConcurrency)
	if c.HistoryDays <= 0 {
		c.HistoryDays = 60
	}
	return c
}

// Registry maps job types to executors.
type Registry struct {
	executors map[core.JobType]Executor
}

// NewRegistry returns a registry holding execs. Later entries replace
// earlier ones for the same job type.
func NewRegistry(execs ...Executor) *Registry {
	r := &Registry{executors: make(map[core.JobType]Executor, len(execs))}
	for _, e := range execs {
		r.executors[e.JobType()] = e
	}
	return r
}

// Standard returns a registry with an executor for every job type.
func Standard(cfg Config) *Registry {
	return NewRegistry(
		NewPreMarket(cfg),
		NewIntraday(cfg),
		NewEndOfDay(cfg),
		NewWeeklyReview(cfg),
		NewSideRefresh(cfg),
	)
}

// Get returns the executor for jobType.
func (r *Registry) Get(jobType core.JobType) (Executor, error) {
	e, ok := r.executors[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNoExecutor, jobType)
	}
	return e, nil
}

// JobTypes returns the registered job types in declaration order.
func (r *Registry) JobTypes() []core.JobType {
	var out []core.JobType
	for _, jt := range core.JobTypes() {
		if _, ok := r.executors[jt]; ok {
			out = append(out, jt)
		}
	}
	return out
}

// Step is one stage of a pipeline.
type Step struct {
	Stage core.StageName
	Do    func(ctx context.Context, st *State) error
}

// Pipeline is an Executor built from ordered steps.
type Pipeline struct {
	jobType core.JobType
	steps   []Step
}

var _ Executor = (*Pipeline)(nil)

// NewPipeline returns a pipeline running steps in order.
func NewPipeline(jobType core.JobType, steps ...Step) *Pipeline {
	return &Pipeline{jobType: jobType, steps: slices.Clone(steps)}
}

// JobType implements Executor.
func (p *Pipeline) JobType() core.JobType { return p.jobType }

// Stages implements Executor.
func (p *Pipeline) Stages() []core.StageName {
	out := make([]core.StageName, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Stage
	}
	return out
}

// Run executes every step in order. A failing step closes its stage as
// failed and stops the pipeline. The partial result is returned alongside
// the error.
func (p *Pipeline) Run(ctx context.Context, rec *tracking.Recorder, res schedule.Resolution) (*core.JobResult, error) {
	ctx = intctx.WithRunContext(ctx, &intctx.RunContext{
		RunID:         rec.RunID(),
		JobType:       res.JobType,
		ScheduledDate: res.ScheduledDate,
		Source:        res.Source,
		Window:        res.Window,
		Params:        res.Params,
		Stage:         rec.Current,
	})
	st := newState(res, rec)
	log := zerolog.Ctx(ctx)

	for _, step := range p.steps {
		if err := rec.Begin(ctx, step.Stage); err != nil {
			return st.Result(), err
		}
		if err := ctx.Err(); err != nil {
			rec.End(ctx, step.Stage, core.StageFailed, err.Error())
			return st.Result(), fmt.Errorf("%s: %w", step.Stage, err)
		}
		if err := runStep(ctx, step, st); err != nil {
			log.Warn().Err(err).Str("stage", string(step.Stage)).Msg("stage failed")
			rec.End(ctx, step.Stage, core.StageFailed, err.Error())
			return st.Result(), fmt.Errorf("%s: %w", step.Stage, err)
		}
		rec.End(ctx, step.Stage, core.StageSuccess)
	}
	return st.Result(), nil
}

func runStep(ctx context.Context, step Step, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return step.Do(ctx, st)
}
