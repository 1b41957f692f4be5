package executor

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/fallback"
)

type signalSet = map[string]core.Signal

// hasUsable is the minimum quality bar for an analysis candidate.
func hasUsable(set signalSet) bool {
	for _, s := range set {
		if s.Usable() {
			return true
		}
	}
	return false
}

func neutralSignal(unit string) core.Signal {
	return core.Signal{
		Unit:      unit,
		Direction: core.Neutral,
		Source:    fallback.DefaultName,
		Tier:      fallback.TierNone.String(),
		Rationale: "no strategy produced a signal",
	}
}

// request builds the model input from what has been fetched so far.
func (s *State) request() AnalysisRequest {
	return AnalysisRequest{
		JobType:       s.Resolution.JobType,
		ScheduledDate: s.Resolution.ScheduledDate,
		Symbols:       slices.Clone(s.Symbols),
		Quotes:        s.Quotes,
		History:       s.History,
		Headlines:     s.Headlines,
		Params:        s.Resolution.Params,
	}
}

// modelCandidate wraps m as a chain candidate, or returns false when m is nil.
func modelCandidate(m Model, tier fallback.Tier, timeout time.Duration, st *State) (fallback.Candidate[signalSet], bool) {
	if m == nil {
		return fallback.Candidate[signalSet]{}, false
	}
	return fallback.Candidate[signalSet]{
		Name:    m.Name(),
		Tier:    tier,
		Timeout: timeout,
		Run: func(ctx context.Context) (signalSet, error) {
			return m.Analyze(ctx, st.request())
		},
		Accept: hasUsable,
	}, true
}

// ruleCandidate wraps a local heuristic. Heuristics do no I/O.
func ruleCandidate(name string, tier fallback.Tier, fn func() signalSet) fallback.Candidate[signalSet] {
	return fallback.Candidate[signalSet]{
		Name: name,
		Tier: tier,
		Run: func(context.Context) (signalSet, error) {
			return fn(), nil
		},
		Accept: hasUsable,
	}
}

// analyze runs candidates as a fallback chain and folds the outcome into
// per-unit signals. Units the chosen candidate did not cover get a neutral
// default.
func (s *State) analyze(ctx context.Context, candidates []fallback.Candidate[signalSet]) {
	out := fallback.Execute(ctx, fallback.Chain[signalSet]{
		Candidates: candidates,
		Default:    func() signalSet { return signalSet{} },
	})
	s.applyOutcome(out, s.Symbols)
}

func (s *State) applyOutcome(out fallback.Outcome[signalSet], units []string) {
	s.Summary.Candidate = out.Candidate
	s.Summary.Tier = out.Tier.String()
	s.Summary.Attempts = out.Failures()
	for _, a := range out.Attempts {
		s.Note("candidate %s", a)
	}

	switch {
	case out.Tier == fallback.TierNone:
		s.Degrade("every strategy failed, using neutral default")
	case out.Degraded():
		s.Degrade("fell back to %s (%s quality)", out.Candidate, out.Tier)
	}

	signals := make(signalSet, len(units))
	missing := 0
	for _, unit := range units {
		sig, ok := out.Value[unit]
		if !ok || !sig.Usable() {
			signals[unit] = neutralSignal(unit)
			missing++
			continue
		}
		sig.Unit = unit
		if sig.Source == "" {
			sig.Source = out.Candidate
		}
		sig.Tier = out.Tier.String()
		signals[unit] = sig
	}
	if missing > 0 && out.Tier != fallback.TierNone {
		s.Degrade("%d of %d units have no usable signal", missing, len(units))
	}
	s.Signals = signals
}

// sortedKeys returns the keys of set in order.
func sortedKeys(set signalSet) []string {
	return slices.Sorted(maps.Keys(set))
}
