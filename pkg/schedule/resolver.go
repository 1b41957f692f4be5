package schedule

import (
	"fmt"
	"maps"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/security"
)

// ManualWindow is the window name recorded for manual overrides.
const ManualWindow = "manual"

// Resolution is the outcome of resolving a trigger.
type Resolution struct {
	JobType       core.JobType
	Source        core.TriggerSource
	Window        string
	ScheduledDate string
	FiredAt       time.Time
	Params        map[string]string
}

// Key returns the run key the resolution will write under.
func (r Resolution) Key() core.RunKey {
	return core.RunKey{JobType: r.JobType, ScheduledDate: r.ScheduledDate}
}

// Param returns a window parameter or def when unset.
func (r Resolution) Param(name, def string) string {
	if v, ok := r.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// Option configures a Resolver.
type Option interface {
	apply(*Resolver)
}

type optionFunc func(*Resolver)

func (f optionFunc) apply(r *Resolver) { f(r) }

// WithLocation sets the home timezone. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return optionFunc(func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	})
}

// WithWindows replaces the trigger table.
func WithWindows(windows []Window) Option {
	return optionFunc(func(r *Resolver) {
		r.windows = windows
	})
}

// Resolver maps instants to job types against a fixed window table.
// It holds no mutable state after construction and is safe for concurrent use.
type Resolver struct {
	loc     *time.Location
	windows []Window
}

// NewResolver compiles the window table.
func NewResolver(opts ...Option) (*Resolver, error) {
	r := &Resolver{loc: time.UTC, windows: DefaultWindows()}
	for _, opt := range opts {
		opt.apply(r)
	}
	compiled := make([]Window, len(r.windows))
	copy(compiled, r.windows)
	for i := range compiled {
		if err := compiled[i].compile(); err != nil {
			return nil, err
		}
	}
	r.windows = compiled
	return r, nil
}

// Location returns the home timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Windows returns the compiled table in evaluation order.
func (r *Resolver) Windows() []Window {
	out := make([]Window, len(r.windows))
	copy(out, r.windows)
	return out
}

// Resolve maps at and an optional manual override to a Resolution.
// A non-empty override bypasses the table but must name a known job type.
// An instant matching no window returns a *core.ResolutionError wrapping
// core.ErrUnrecognizedSchedule.
func (r *Resolver) Resolve(at time.Time, override string) (Resolution, error) {
	local := at.In(r.loc)

	if override != "" {
		if err := security.ValidateJobTypeName(override); err != nil {
			return Resolution{}, &core.ResolutionError{At: local, Override: override, Err: err}
		}
		jt, err := core.ParseJobType(override)
		if err != nil {
			return Resolution{}, &core.ResolutionError{At: local, Override: override, Err: err}
		}
		return Resolution{
			JobType:       jt,
			Source:        core.SourceManual,
			Window:        ManualWindow,
			ScheduledDate: SameDay.BusinessDate(local),
			FiredAt:       local,
			Params:        map[string]string{},
		}, nil
	}

	for i := range r.windows {
		w := &r.windows[i]
		if !w.Matches(local) {
			continue
		}
		return Resolution{
			JobType:       w.JobType,
			Source:        core.SourceScheduled,
			Window:        w.Name,
			ScheduledDate: w.Attribution.BusinessDate(local),
			FiredAt:       local,
			Params:        cloneParams(w.Params),
		}, nil
	}

	return Resolution{}, &core.ResolutionError{At: local, Err: core.ErrUnrecognizedSchedule}
}

// NextFire returns the earliest window fire strictly after from, and the window.
func (r *Resolver) NextFire(from time.Time) (time.Time, Window, error) {
	if len(r.windows) == 0 {
		return time.Time{}, Window{}, fmt.Errorf("schedule: %w: empty window table", core.ErrUnrecognizedSchedule)
	}
	local := from.In(r.loc)
	var (
		best    time.Time
		bestIdx = -1
	)
	for i := range r.windows {
		next := r.windows[i].Next(local)
		if next.IsZero() {
			continue
		}
		if bestIdx < 0 || next.Before(best) {
			best, bestIdx = next, i
		}
	}
	if bestIdx < 0 {
		return time.Time{}, Window{}, fmt.Errorf("schedule: %w: no window fires again", core.ErrUnrecognizedSchedule)
	}
	return best, r.windows[bestIdx], nil
}

func cloneParams(p map[string]string) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return maps.Clone(p)
}
