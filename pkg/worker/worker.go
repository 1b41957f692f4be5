package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/orchestrator"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
)

// Runner executes one invocation. *orchestrator.Orchestrator implements it.
type Runner interface {
	Trigger(ctx context.Context, inv orchestrator.Invocation) (*orchestrator.Report, error)
}

// Worker fires windows of a resolver's table through a Runner.
type Worker struct {
	runner   Runner
	resolver *schedule.Resolver
	config   WorkerConfig
	logger   zerolog.Logger
	sem      chan struct{}
	wg       sync.WaitGroup

	next       time.Time
	nextWindow schedule.Window
}

// NewWorker creates a new worker for the given resolver and runner.
func NewWorker(runner Runner, resolver *schedule.Resolver, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:    time.Second,
		WorkerID:        uuid.New().String(),
		Concurrency:     4,
		MissedFireGrace: time.Minute,
		Logger:          zerolog.Nop(),
		Now:             time.Now,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	return &Worker{
		runner:   runner,
		resolver: resolver,
		config:   config,
		logger: config.Logger.With().
			Str("component", "worker").
			Str("worker_id", config.WorkerID).
			Logger(),
		sem: make(chan struct{}, config.Concurrency),
	}
}

// Config returns the effective configuration.
func (w *Worker) Config() WorkerConfig {
	return w.config
}

// Next returns the next scheduled fire and its window. Zero before Start.
func (w *Worker) Next() (time.Time, schedule.Window) {
	return w.next, w.nextWindow
}

// Start fires windows until ctx is cancelled, then waits for in-flight
// runs. Runs are detached from ctx so a shutdown lets them finish under
// the orchestrator's deadline.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.schedule(w.config.Now()); err != nil {
		return err
	}
	w.logger.Info().
		Time("next_fire", w.next).
		Str("window", w.nextWindow.Name).
		Int("concurrency", w.config.Concurrency).
		Msg("worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopping, waiting for in-flight runs")
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := w.tick(context.WithoutCancel(ctx), w.config.Now()); err != nil {
				w.logger.Error().Err(err).Msg("no further windows, worker idle")
				<-ctx.Done()
				w.wg.Wait()
				return ctx.Err()
			}
		}
	}
}

// Wait blocks until every dispatched run has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// schedule computes the first fire strictly after from.
func (w *Worker) schedule(from time.Time) error {
	next, win, err := w.resolver.NextFire(from)
	if err != nil {
		return err
	}
	w.next, w.nextWindow = next, win
	return nil
}

// tick dispatches every fire due at now. Fires older than the grace
// period are skipped.
func (w *Worker) tick(ctx context.Context, now time.Time) error {
	for !w.next.After(now) {
		fire, win := w.next, w.nextWindow
		if late := now.Sub(fire); late > w.config.MissedFireGrace {
			w.logger.Warn().
				Str("window", win.Name).
				Time("fire", fire).
				Dur("late", late).
				Msg("missed window, skipping")
		} else {
			w.dispatch(ctx, fire, win)
		}
		if err := w.schedule(fire); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) dispatch(ctx context.Context, fire time.Time, win schedule.Window) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.sem <- struct{}{}
		defer func() { <-w.sem }()

		log := w.logger.With().Str("window", win.Name).Str("job_type", string(win.JobType)).Logger()
		report, err := w.runner.Trigger(log.WithContext(ctx), orchestrator.Invocation{
			At:     fire,
			Source: core.SourceScheduled,
		})
		if err != nil {
			// Fire instants come from the table itself; a rejection means
			// the table and the resolver disagree.
			log.Error().Err(err).Time("fire", fire).Msg("window fire rejected")
			return
		}
		log.Info().
			Str("run_id", report.RunID).
			Str("status", string(report.Status)).
			Dur("duration", report.Duration).
			Msg("window run finished")
	}()
}
