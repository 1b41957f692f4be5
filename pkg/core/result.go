package core

// Direction is the stance a signal takes on a unit.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Signal is the outcome for one logical unit (a symbol, an index, a feed).
type Signal struct {
	Unit       string    `json:"unit" msgpack:"unit"`
	Direction  Direction `json:"direction" msgpack:"direction"`
	Confidence float64   `json:"confidence" msgpack:"confidence"`
	Source     string    `json:"source" msgpack:"source"`
	Tier       string    `json:"tier" msgpack:"tier"`
	Rationale  string    `json:"rationale,omitempty" msgpack:"rationale,omitempty"`
}

// Usable reports whether the signal carries a direction and a confidence in (0, 1].
func (s Signal) Usable() bool {
	return s.Direction != "" && s.Confidence > 0 && s.Confidence <= 1
}

// GenerationMeta is the executor's own view of how generation went.
// It is an input to reconciliation, never the final word.
type GenerationMeta struct {
	Status RunStatus `json:"status" msgpack:"status"`
	Notes  []string  `json:"notes,omitempty" msgpack:"notes,omitempty"`
}

// JobResult is the domain output of a job executor.
type JobResult struct {
	UnitsProcessed int               `json:"units_processed" msgpack:"units_processed"`
	Signals        map[string]Signal `json:"signals" msgpack:"signals"`
	Meta           *GenerationMeta   `json:"meta,omitempty" msgpack:"meta,omitempty"`
	// Payload is job-specific report content; opaque to orchestration.
	Payload any `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// MetaStatus returns the self-reported status, or "" when absent.
func (r *JobResult) MetaStatus() RunStatus {
	if r == nil || r.Meta == nil {
		return ""
	}
	return r.Meta.Status
}
