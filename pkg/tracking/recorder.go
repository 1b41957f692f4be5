package tracking

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// danglingStageError is recorded on stages closed by CloseDangling.
const danglingStageError = "stage left open when the run ended"

// Recorder tracks the stages of one run. Stages must be opened in the
// declared order, one at a time. The in-memory run is always kept current;
// writes are mirrored to the Tracker when the run has a handle.
type Recorder struct {
	mu       sync.Mutex
	tracker  *Tracker
	handle   *RunHandle
	run      *core.Run
	declared []core.StageName
	next     int
	open     int // index into run.Stages, -1 when no stage is open
	sealed   bool
	emit     func(core.Event)
	log      zerolog.Logger
	now      func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption interface {
	applyRecorder(*Recorder)
}

type recorderOptionFunc func(*Recorder)

func (f recorderOptionFunc) applyRecorder(r *Recorder) { f(r) }

// WithEmitter sets the function receiving stage events.
func WithEmitter(emit func(core.Event)) RecorderOption {
	return recorderOptionFunc(func(r *Recorder) {
		r.emit = emit
	})
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(log zerolog.Logger) RecorderOption {
	return recorderOptionFunc(func(r *Recorder) {
		r.log = log
	})
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) RecorderOption {
	return recorderOptionFunc(func(r *Recorder) {
		r.now = now
	})
}

// NewRecorder returns a recorder for run. handle may be nil.
func NewRecorder(tracker *Tracker, handle *RunHandle, run *core.Run, declared []core.StageName, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		tracker:  tracker,
		handle:   handle,
		run:      run,
		declared: slices.Clone(declared),
		open:     -1,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt.applyRecorder(r)
	}
	r.log = r.log.With().Str("run_id", run.ID).Str("job_type", string(run.JobType)).Logger()
	return r
}

// Tracked reports whether the run is being persisted.
func (r *Recorder) Tracked() bool {
	return r.handle != nil
}

// Handle returns the run handle, or nil when tracking is disabled.
func (r *Recorder) Handle() *RunHandle {
	return r.handle
}

// RunID returns the run identifier.
func (r *Recorder) RunID() string {
	return r.run.ID
}

// Declared returns the stage order for the run.
func (r *Recorder) Declared() []core.StageName {
	return slices.Clone(r.declared)
}

// Begin opens the next declared stage. It fails with core.ErrStageOutOfOrder
// if name is not next or another stage is still open, and with
// core.ErrRunCompleted once the run is sealed or terminal.
func (r *Recorder) Begin(ctx context.Context, name core.StageName) error {
	r.mu.Lock()
	if r.sealed || r.run.Status.IsTerminal() {
		r.mu.Unlock()
		return core.ErrRunCompleted
	}
	if r.open >= 0 {
		cur := r.run.Stages[r.open].Name
		r.mu.Unlock()
		return fmt.Errorf("%w: %s opened while %s is running", core.ErrStageOutOfOrder, name, cur)
	}
	if r.next >= len(r.declared) || r.declared[r.next] != name {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is not the next declared stage", core.ErrStageOutOfOrder, name)
	}

	stage := core.Stage{
		ID:        uuid.New().String(),
		RunID:     r.run.ID,
		Name:      name,
		Position:  r.next,
		Status:    core.StageRunning,
		StartedAt: r.now(),
	}
	r.run.Stages = append(r.run.Stages, stage)
	r.open = len(r.run.Stages) - 1
	r.next++
	r.mu.Unlock()

	r.tracker.StartStage(ctx, r.handle, &stage)
	r.emitEvent(&core.StageStarted{RunID: r.run.ID, Stage: name, Timestamp: stage.StartedAt})
	r.log.Debug().Str("stage", string(name)).Msg("stage started")
	return nil
}

// End closes the named stage. Ending a stage that is not open is a no-op
// with a logged warning.
func (r *Recorder) End(ctx context.Context, name core.StageName, status core.StageStatus, errs ...string) {
	if status != core.StageSuccess && status != core.StageFailed {
		r.log.Warn().Str("stage", string(name)).Str("status", string(status)).Msg("invalid stage end status, ignoring")
		return
	}

	r.mu.Lock()
	if r.open < 0 || r.run.Stages[r.open].Name != name {
		r.mu.Unlock()
		r.log.Warn().Str("stage", string(name)).Msg("stage not open, ignoring end")
		return
	}
	ended := r.now()
	st := &r.run.Stages[r.open]
	st.Status = status
	st.EndedAt = &ended
	st.Errors = append(st.Errors, errs...)
	r.open = -1
	r.mu.Unlock()

	r.tracker.EndStage(ctx, r.handle, name, status, errs, ended)
	r.emitEvent(&core.StageEnded{RunID: r.run.ID, Stage: name, Status: status, Errors: errs, Timestamp: ended})
	r.log.Debug().Str("stage", string(name)).Str("status", string(status)).Msg("stage ended")
}

// Current returns the open stage, or "" when none is open.
func (r *Recorder) Current() core.StageName {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open < 0 {
		return ""
	}
	return r.run.Stages[r.open].Name
}

// Seal stops further stages from opening. An open stage can still be
// ended.
func (r *Recorder) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// CloseDangling closes any open stage as failed and returns its name.
func (r *Recorder) CloseDangling(ctx context.Context) []core.StageName {
	r.mu.Lock()
	if r.open < 0 {
		r.mu.Unlock()
		return nil
	}
	ended := r.now()
	st := &r.run.Stages[r.open]
	st.Status = core.StageFailed
	st.EndedAt = &ended
	st.Errors = append(st.Errors, danglingStageError)
	name := st.Name
	r.open = -1
	r.mu.Unlock()

	errs := []string{danglingStageError}
	r.tracker.EndStage(ctx, r.handle, name, core.StageFailed, errs, ended)
	r.emitEvent(&core.StageEnded{RunID: r.run.ID, Stage: name, Status: core.StageFailed, Errors: errs, Timestamp: ended})
	r.log.Warn().Str("stage", string(name)).Msg("closed stage left running")
	return []core.StageName{name}
}

// Warn appends a warning to the run.
func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	r.run.Warnings = append(r.run.Warnings, msg)
	r.mu.Unlock()
}

// Warnf appends a formatted warning to the run.
func (r *Recorder) Warnf(format string, args ...any) {
	r.Warn(fmt.Sprintf(format, args...))
}

// Error appends an error message to the run.
func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	r.run.Errors = append(r.run.Errors, msg)
	r.mu.Unlock()
}

// Warnings returns a copy of the run's warnings.
func (r *Recorder) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone([]string(r.run.Warnings))
}

// Errors returns a copy of the run's errors.
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone([]string(r.run.Errors))
}

// Complete seals the run, closes a stage still open as failed, then moves
// the run to status and mirrors it to the store. Only the first call has
// an effect. It returns a snapshot of the run.
func (r *Recorder) Complete(ctx context.Context, status core.RunStatus) *core.Run {
	r.mu.Lock()
	r.sealed = true
	if r.run.Status.IsTerminal() {
		r.mu.Unlock()
		r.log.Warn().Str("status", string(status)).Msg("run already completed, ignoring")
		return r.Snapshot()
	}
	completed := r.now()
	var dangling core.StageName
	if r.open >= 0 {
		st := &r.run.Stages[r.open]
		st.Status = core.StageFailed
		st.EndedAt = &completed
		st.Errors = append(st.Errors, danglingStageError)
		dangling = st.Name
		r.open = -1
		if status != core.RunFailed {
			r.log.Warn().Str("stage", string(dangling)).Str("status", string(status)).Msg("stage open at completion, failing run")
			status = core.RunFailed
		}
	}
	r.run.Status = status
	r.run.CompletedAt = &completed
	warnings := slices.Clone([]string(r.run.Warnings))
	errs := slices.Clone([]string(r.run.Errors))
	r.mu.Unlock()

	if dangling != "" {
		r.tracker.EndStage(ctx, r.handle, dangling, core.StageFailed, []string{danglingStageError}, completed)
		r.emitEvent(&core.StageEnded{RunID: r.run.ID, Stage: dangling, Status: core.StageFailed, Errors: []string{danglingStageError}, Timestamp: completed})
	}
	r.tracker.CompleteRun(ctx, r.handle, status, warnings, errs, completed)
	return r.Snapshot()
}

// Snapshot returns a deep copy of the run.
func (r *Recorder) Snapshot() *core.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.run
	cp.Warnings = slices.Clone(r.run.Warnings)
	cp.Errors = slices.Clone(r.run.Errors)
	cp.Stages = make([]core.Stage, len(r.run.Stages))
	for i, st := range r.run.Stages {
		st.Errors = slices.Clone(st.Errors)
		cp.Stages[i] = st
	}
	if r.run.CompletedAt != nil {
		t := *r.run.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (r *Recorder) emitEvent(e core.Event) {
	if r.emit != nil {
		r.emit(e)
	}
}
