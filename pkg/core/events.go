package core

import "time"

// Event is the interface for all run events.
type Event interface {
	eventMarker()
}

// RunStarted is emitted when a run is opened.
type RunStarted struct {
	Run       *Run      `json:"run"`
	Timestamp time.Time `json:"timestamp"`
}

func (*RunStarted) eventMarker() {}

// StageStarted is emitted when a stage opens.
type StageStarted struct {
	RunID     string    `json:"run_id"`
	Stage     StageName `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

func (*StageStarted) eventMarker() {}

// StageEnded is emitted when a stage closes.
type StageEnded struct {
	RunID     string      `json:"run_id"`
	Stage     StageName   `json:"stage"`
	Status    StageStatus `json:"status"`
	Errors    []string    `json:"errors,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (*StageEnded) eventMarker() {}

// RunCompleted is emitted when a run reaches a terminal state.
type RunCompleted struct {
	Run       *Run          `json:"run"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

func (*RunCompleted) eventMarker() {}

// TriggerRejected is emitted when resolution fails. No run exists for it.
type TriggerRejected struct {
	Override  string    `json:"override,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (*TriggerRejected) eventMarker() {}

// EventName returns a stable name for e, used on the wire.
func EventName(e Event) string {
	switch e.(type) {
	case *RunStarted:
		return "run.started"
	case *StageStarted:
		return "stage.started"
	case *StageEnded:
		return "stage.ended"
	case *RunCompleted:
		return "run.completed"
	case *TriggerRejected:
		return "trigger.rejected"
	default:
		return "unknown"
	}
}
