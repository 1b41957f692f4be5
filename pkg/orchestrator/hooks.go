package orchestrator

import (
	"context"
	"runtime/debug"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// OnRunStart registers a callback for when a run opens.
func (o *Orchestrator) OnRunStart(fn func(context.Context, *core.Run)) {
	o.mu.Lock()
	o.onStart = append(o.onStart, fn)
	o.mu.Unlock()
}

// OnRunComplete registers a callback for runs ending success or partial.
func (o *Orchestrator) OnRunComplete(fn func(context.Context, *Report)) {
	o.mu.Lock()
	o.onComplete = append(o.onComplete, fn)
	o.mu.Unlock()
}

// OnRunFail registers a callback for runs ending failed.
func (o *Orchestrator) OnRunFail(fn func(context.Context, *Report, error)) {
	o.mu.Lock()
	o.onFail = append(o.onFail, fn)
	o.mu.Unlock()
}

// Events returns a channel for receiving run events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (o *Orchestrator) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	o.mu.Lock()
	o.eventSubs = append(o.eventSubs, ch)
	o.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (o *Orchestrator) Unsubscribe(ch <-chan core.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, sub := range o.eventSubs {
		if sub == ch {
			o.eventSubs = append(o.eventSubs[:i], o.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers. Slow subscribers miss events
// rather than block a run.
func (o *Orchestrator) Emit(e core.Event) {
	o.mu.RLock()
	subs := make([]chan core.Event, len(o.eventSubs))
	copy(subs, o.eventSubs)
	o.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (o *Orchestrator) callStartHooks(ctx context.Context, run *core.Run) {
	o.mu.RLock()
	hooks := make([]func(context.Context, *core.Run), len(o.onStart))
	copy(hooks, o.onStart)
	o.mu.RUnlock()

	for _, fn := range hooks {
		o.sideEffect(ctx, "start hook", func() error { fn(ctx, run); return nil })
	}
}

func (o *Orchestrator) callEndHooks(ctx context.Context, report *Report, err error) {
	o.mu.RLock()
	complete := make([]func(context.Context, *Report), len(o.onComplete))
	copy(complete, o.onComplete)
	fail := make([]func(context.Context, *Report, error), len(o.onFail))
	copy(fail, o.onFail)
	o.mu.RUnlock()

	if report.Status == core.RunFailed {
		for _, fn := range fail {
			o.sideEffect(ctx, "fail hook", func() error { fn(ctx, report, err); return nil })
		}
		return
	}
	for _, fn := range complete {
		o.sideEffect(ctx, "complete hook", func() error { fn(ctx, report); return nil })
	}
}

// sideEffect runs fn, logging its error or panic. Side effects never
// change a run's outcome.
func (o *Orchestrator) sideEffect(ctx context.Context, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger(ctx).Error().
				Interface("panic", r).
				Str("side_effect", name).
				Bytes("stack", debug.Stack()).
				Msg("side effect panicked")
		}
	}()
	if err := fn(); err != nil {
		o.logger(ctx).Warn().Err(err).Str("side_effect", name).Msg("side effect failed")
	}
}
