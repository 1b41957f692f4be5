package orchestrator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Default values.
var (
	DefaultRunDeadline   = 20 * time.Minute
	DefaultSignalTimeout = 10 * time.Second
)

// Policy is the per job type execution policy.
type Policy struct {
	// RequireTracking fails the run when the run store cannot open it.
	RequireTracking bool
	// Deadline overrides the orchestrator's run deadline when positive.
	Deadline time.Duration
}

// Option configures an Orchestrator.
type Option interface {
	apply(*Orchestrator)
}

type optionFunc func(*Orchestrator)

func (f optionFunc) apply(o *Orchestrator) { f(o) }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return optionFunc(func(o *Orchestrator) {
		o.log = log.With().Str("component", "orchestrator").Logger()
	})
}

// WithRunDeadline bounds every run end to end.
func WithRunDeadline(d time.Duration) Option {
	return optionFunc(func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
		}
	})
}

// WithPolicy sets the policy for one job type.
func WithPolicy(jobType core.JobType, p Policy) Option {
	return optionFunc(func(o *Orchestrator) {
		o.policies[jobType] = p
	})
}

// RequireTracking marks job types whose runs fail without a run store.
func RequireTracking(jobTypes ...core.JobType) Option {
	return optionFunc(func(o *Orchestrator) {
		for _, jt := range jobTypes {
			p := o.policies[jt]
			p.RequireTracking = true
			o.policies[jt] = p
		}
	})
}

// WithCache sets the cache/dashboard layer signalled after each run.
func WithCache(c core.CacheSignaler) Option {
	return optionFunc(func(o *Orchestrator) {
		o.cache = c
	})
}

// WithAlerter sets the channel notified of failed runs.
func WithAlerter(a core.Alerter) Option {
	return optionFunc(func(o *Orchestrator) {
		o.alerter = a
	})
}

// WithSignalTimeout bounds each cache signal and alert.
func WithSignalTimeout(d time.Duration) Option {
	return optionFunc(func(o *Orchestrator) {
		if d > 0 {
			o.signalTimeout = d
		}
	})
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *Orchestrator) {
		o.now = now
	})
}
