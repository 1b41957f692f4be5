// Package validate judges whether a job result is usable and reconciles
// every outcome signal of a run into one terminal status.
package validate

import (
	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Rejection reasons.
const (
	ReasonNilResult  = "executor returned no result"
	ReasonNoUnits    = "zero units processed"
	ReasonNoSignals  = "signal set is empty"
	ReasonNoneUsable = "no signal has a direction and a confidence in (0, 1]"
)

// Verdict is the validator's judgment of a result.
type Verdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Validate inspects r independently of any status the executor reported.
func Validate(r *core.JobResult) Verdict {
	switch {
	case r == nil:
		return Verdict{Reason: ReasonNilResult}
	case r.UnitsProcessed <= 0:
		return Verdict{Reason: ReasonNoUnits}
	case len(r.Signals) == 0:
		return Verdict{Reason: ReasonNoSignals}
	}
	for _, s := range r.Signals {
		if s.Usable() {
			return Verdict{OK: true}
		}
	}
	return Verdict{Reason: ReasonNoneUsable}
}

// Input gathers every signal that bears on a run's final status.
type Input struct {
	// ExecErr is the error the executor returned, if any.
	ExecErr error
	Verdict Verdict
	// MetaStatus is the executor's self-reported status; may be empty.
	MetaStatus core.RunStatus
	Warnings   []string
	// Dangling lists stages that were still open when the executor returned.
	Dangling []core.StageName
}

// Reconcile is the single decision point for a run's terminal status.
//
// failed: the executor errored, a stage was left open, or the validator
// rejected the result. partial: the result is usable but the executor
// reported degraded quality or warnings were recorded. success otherwise.
func Reconcile(in Input) core.RunStatus {
	if in.ExecErr != nil || len(in.Dangling) > 0 || !in.Verdict.OK {
		return core.RunFailed
	}
	if in.MetaStatus == core.RunPartial || in.MetaStatus == core.RunFailed || len(in.Warnings) > 0 {
		return core.RunPartial
	}
	return core.RunSuccess
}
