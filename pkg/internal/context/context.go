// Package context provides context helpers for the runs package.
package context

import (
	"context"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// RunContextKey is the key for storing run context in context.Context.
type RunContextKey struct{}

// RunContext holds the identity of the run being executed.
type RunContext struct {
	RunID         string
	JobType       core.JobType
	ScheduledDate string
	Source        core.TriggerSource
	Window        string
	Params        map[string]string
	// Stage reports the stage currently open, or "" between stages.
	Stage func() core.StageName
}

// GetRunContext retrieves the run context from a context.Context.
func GetRunContext(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(RunContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}

// WithRunContext adds run context to a context.Context.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, RunContextKey{}, rc)
}
