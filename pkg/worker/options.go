package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	PollInterval time.Duration
	WorkerID     string
	Concurrency  int
	// MissedFireGrace is how late a fire may still be started. Fires
	// discovered later than this, e.g. after the host slept, are skipped.
	MissedFireGrace time.Duration
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Concurrency sets how many runs may execute at once.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// PollInterval sets how often the worker checks for due windows.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// MissedFireGrace sets how late a fire may be and still run.
func MissedFireGrace(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.MissedFireGrace = d
		}
	})
}

// WorkerID names the worker in logs.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = log
	})
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if now != nil {
			c.Now = now
		}
	})
}
