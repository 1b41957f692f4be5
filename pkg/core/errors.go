package core

import (
	"errors"
	"fmt"
	"time"
)

// Resolution errors
var (
	ErrUnrecognizedSchedule = errors.New("runs: unrecognized schedule")
	ErrUnknownJobType       = errors.New("runs: unknown job type")
	ErrInvalidJobTypeName   = errors.New("runs: invalid job type name (must be alphanumeric, start with letter)")
	ErrJobTypeNameTooLong   = errors.New("runs: job type name too long")
	ErrInvalidScheduledDate = errors.New("runs: invalid scheduled date")
	ErrInvalidTriggerSource = errors.New("runs: invalid trigger source")
)

// Tracking errors
var (
	ErrRunNotFound         = errors.New("runs: run not found")
	ErrRunCompleted        = errors.New("runs: run already completed")
	ErrStageNotOpen        = errors.New("runs: stage not open")
	ErrStageExists         = errors.New("runs: stage already started")
	ErrStageOutOfOrder     = errors.New("runs: stage out of declared order")
	ErrTrackingUnavailable = errors.New("runs: run tracking unavailable")
	ErrInvalidStatus       = errors.New("runs: invalid status")
	ErrUnsupportedColumn   = errors.New("runs: unsupported column type")
)

// Execution errors
var (
	ErrNoExecutor        = errors.New("runs: no executor registered for job type")
	ErrRunDeadline       = errors.New("runs: run deadline exceeded")
	ErrResultRejected    = errors.New("runs: result rejected by validator")
	ErrStagesLeftRunning = errors.New("runs: stages left running")
)

// ResolutionError reports a trigger that could not be mapped to a job type.
// No run is opened for it.
type ResolutionError struct {
	At       time.Time
	Override string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Override != "" {
		return fmt.Sprintf("resolve manual override %q: %v", e.Override, e.Err)
	}
	return fmt.Sprintf("resolve trigger at %s: %v", e.At.Format("Mon 15:04 MST"), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
