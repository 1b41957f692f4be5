// Package jobctx provides public access to run context for collaborators.
package jobctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
	intctx "github.com/jdziat/simple-report-runs/pkg/internal/context"
)

// RunInfo describes the run a collaborator call is made for.
type RunInfo struct {
	RunID         string
	JobType       core.JobType
	ScheduledDate string
	Source        core.TriggerSource
	Window        string
	Stage         core.StageName
}

// RunFromContext returns the current run, or nil outside a run.
func RunFromContext(ctx context.Context) *RunInfo {
	rc := intctx.GetRunContext(ctx)
	if rc == nil {
		return nil
	}
	info := &RunInfo{
		RunID:         rc.RunID,
		JobType:       rc.JobType,
		ScheduledDate: rc.ScheduledDate,
		Source:        rc.Source,
		Window:        rc.Window,
	}
	if rc.Stage != nil {
		info.Stage = rc.Stage()
	}
	return info
}

// RunIDFromContext returns the current run ID, or empty string outside a run.
// Use this to tag outbound requests and log lines.
func RunIDFromContext(ctx context.Context) string {
	rc := intctx.GetRunContext(ctx)
	if rc == nil {
		return ""
	}
	return rc.RunID
}

// Param returns a window parameter of the current run, or def.
func Param(ctx context.Context, name, def string) string {
	rc := intctx.GetRunContext(ctx)
	if rc == nil {
		return def
	}
	if v, ok := rc.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// Logger returns the context logger enriched with the run's identity.
func Logger(ctx context.Context) zerolog.Logger {
	log := *zerolog.Ctx(ctx)
	info := RunFromContext(ctx)
	if info == nil {
		return log
	}
	lc := log.With().
		Str("run_id", info.RunID).
		Str("job_type", string(info.JobType)).
		Str("scheduled_date", info.ScheduledDate)
	if info.Stage != "" {
		lc = lc.Str("stage", string(info.Stage))
	}
	return lc.Logger()
}
