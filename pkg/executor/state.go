package executor

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
)

// Summary is the report payload shared by every job type.
type Summary struct {
	Candidate string                 `json:"candidate" msgpack:"candidate"`
	Tier      string                 `json:"tier" msgpack:"tier"`
	Attempts  []string               `json:"attempts,omitempty" msgpack:"attempts,omitempty"`
	Bullish   int                    `json:"bullish" msgpack:"bullish"`
	Bearish   int                    `json:"bearish" msgpack:"bearish"`
	Neutral   int                    `json:"neutral" msgpack:"neutral"`
	Stats     map[string]WeeklyStats `json:"stats,omitempty" msgpack:"stats,omitempty"`
}

// State is the working set a pipeline's steps share.
type State struct {
	Resolution schedule.Resolution
	Recorder   *tracking.Recorder

	// Symbols are the units still in play. Fetch steps drop units they
	// could not get data for.
	Symbols   []string
	Quotes    map[string]Quote
	History   map[string][]Bar
	Headlines map[string][]Headline
	Signals   map[string]core.Signal
	Summary   Summary

	notes    []string
	degraded bool
}

func newState(res schedule.Resolution, rec *tracking.Recorder) *State {
	return &State{Resolution: res, Recorder: rec}
}

// Degrade records a warning on the run and marks the result partial.
func (s *State) Degrade(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.notes = append(s.notes, msg)
	s.degraded = true
	s.Recorder.Warn(msg)
}

// Note adds a diagnostic line to the result without degrading it.
func (s *State) Note(format string, args ...any) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// Result builds the job result from the current state.
func (s *State) Result() *core.JobResult {
	signals := maps.Clone(s.Signals)
	if signals == nil {
		signals = map[string]core.Signal{}
	}

	summary := s.Summary
	summary.Bullish, summary.Bearish, summary.Neutral = 0, 0, 0
	usable := 0
	for _, sig := range signals {
		switch sig.Direction {
		case core.Bullish:
			summary.Bullish++
		case core.Bearish:
			summary.Bearish++
		default:
			summary.Neutral++
		}
		if sig.Usable() {
			usable++
		}
	}

	status := core.RunSuccess
	switch {
	case usable == 0:
		status = core.RunFailed
	case s.degraded:
		status = core.RunPartial
	}

	return &core.JobResult{
		UnitsProcessed: len(s.Symbols),
		Signals:        signals,
		Meta:           &core.GenerationMeta{Status: status, Notes: slices.Clone(s.notes)},
		Payload:        &summary,
	}
}
