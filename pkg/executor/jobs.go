package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/fallback"
)

// ParamSymbols overrides the watchlist for one window, as a comma-separated list.
const ParamSymbols = "symbols"

// ParamLookbackDays sets the weekly review window.
const ParamLookbackDays = "lookback_days"

var errNoSink = errors.New("no report sink configured")

// NewPreMarket reads overnight quotes and news before the open.
func NewPreMarket(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return NewPipeline(core.JobPreMarket,
		initStep(cfg),
		Step{Stage: core.StageDataFetch, Do: func(ctx context.Context, st *State) error {
			if err := st.fetchQuotes(ctx, cfg.Market, cfg.CollaboratorTimeout); err != nil {
				return err
			}
			st.fetchHeadlines(ctx, cfg.News, cfg.CollaboratorTimeout)
			return nil
		}},
		Step{Stage: core.StageAIAnalysis, Do: func(ctx context.Context, st *State) error {
			var cs []fallback.Candidate[signalSet]
			cs = appendModel(cs, cfg.Primary, fallback.TierHigh, cfg.ModelTimeout, st)
			cs = appendModel(cs, cfg.Secondary, fallback.TierMedium, cfg.ModelTimeout, st)
			if !cfg.DisableHeuristics {
				cs = append(cs, ruleCandidate(RuleQuoteMomentum, fallback.TierLow, func() signalSet {
					return QuoteMomentum(st.Quotes, st.Symbols)
				}))
			}
			st.analyze(ctx, cs)
			return nil
		}},
		storageStep(cfg),
	)
}

// NewIntraday refreshes signals during the session.
func NewIntraday(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return NewPipeline(core.JobIntraday,
		initStep(cfg),
		Step{Stage: core.StageDataFetch, Do: func(ctx context.Context, st *State) error {
			if err := st.fetchQuotes(ctx, cfg.Market, cfg.CollaboratorTimeout); err != nil {
				return err
			}
			return st.fetchHistory(ctx, cfg.Market, cfg.HistoryDays, cfg.FetchConcurrency, cfg.CollaboratorTimeout)
		}},
		Step{Stage: core.StageAIAnalysis, Do: func(ctx context.Context, st *State) error {
			var cs []fallback.Candidate[signalSet]
			cs = appendModel(cs, cfg.Primary, fallback.TierHigh, cfg.ModelTimeout, st)
			if !cfg.DisableHeuristics {
				cs = append(cs, ruleCandidate(RuleEMACrossover, fallback.TierLow, func() signalSet {
					return EMACrossover(st.History, st.Symbols)
				}))
			}
			st.analyze(ctx, cs)
			return nil
		}},
		storageStep(cfg),
	)
}

// NewEndOfDay scores the closing session. The technical rule leads; the
// secondary model is the fallback.
func NewEndOfDay(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return NewPipeline(core.JobEndOfDay,
		initStep(cfg),
		Step{Stage: core.StageDataFetch, Do: func(ctx context.Context, st *State) error {
			return st.fetchHistory(ctx, cfg.Market, cfg.HistoryDays, cfg.FetchConcurrency, cfg.CollaboratorTimeout)
		}},
		Step{Stage: core.StageAIAnalysis, Do: func(ctx context.Context, st *State) error {
			var cs []fallback.Candidate[signalSet]
			if !cfg.DisableHeuristics {
				cs = append(cs, ruleCandidate(RuleTrendRSI, fallback.TierHigh, func() signalSet {
					return TrendRSI(st.History, st.Symbols)
				}))
			}
			cs = appendModel(cs, cfg.Secondary, fallback.TierMedium, cfg.ModelTimeout, st)
			st.analyze(ctx, cs)
			return nil
		}},
		storageStep(cfg),
	)
}

// NewWeeklyReview summarizes the trading week from daily returns.
func NewWeeklyReview(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return NewPipeline(core.JobWeeklyReview,
		initStep(cfg),
		Step{Stage: core.StageDataFetch, Do: func(ctx context.Context, st *State) error {
			days := max(cfg.HistoryDays, lookbackDays(st)+1)
			return st.fetchHistory(ctx, cfg.Market, days, cfg.FetchConcurrency, cfg.CollaboratorTimeout)
		}},
		Step{Stage: core.StageAIAnalysis, Do: func(ctx context.Context, st *State) error {
			var (
				cs    []fallback.Candidate[signalSet]
				stats map[string]WeeklyStats
			)
			if !cfg.DisableHeuristics {
				var signals signalSet
				signals, stats = WeeklyTrend(st.History, st.Symbols, lookbackDays(st))
				cs = append(cs, ruleCandidate(RuleWeeklyStats, fallback.TierHigh, func() signalSet {
					return signals
				}))
			}
			cs = appendModel(cs, cfg.Primary, fallback.TierMedium, cfg.ModelTimeout, st)
			st.analyze(ctx, cs)
			if st.Summary.Candidate == RuleWeeklyStats {
				st.Summary.Stats = stats
			}
			return nil
		}},
		storageStep(cfg),
	)
}

// NewSideRefresh refreshes auxiliary feeds. Sources are tried in order as
// a fallback chain; there is no analysis stage.
func NewSideRefresh(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return NewPipeline(core.JobSideRefresh,
		Step{Stage: core.StageInit, Do: func(ctx context.Context, st *State) error {
			if len(cfg.SideChannels) == 0 {
				return fmt.Errorf("%w: no side channels", ErrNoUnits)
			}
			st.Note("%d side channels configured", len(cfg.SideChannels))
			return nil
		}},
		Step{Stage: core.StageDataFetch, Do: func(ctx context.Context, st *State) error {
			cs := make([]fallback.Candidate[signalSet], 0, len(cfg.SideChannels))
			for i, sc := range cfg.SideChannels {
				cs = append(cs, fallback.Candidate[signalSet]{
					Name:    sc.Name(),
					Tier:    sourceTier(i),
					Timeout: cfg.CollaboratorTimeout,
					Run: func(ctx context.Context) (signalSet, error) {
						return sc.Fetch(ctx, st.Resolution.ScheduledDate)
					},
					Accept: hasUsable,
				})
			}
			out := fallback.Execute(ctx, fallback.Chain[signalSet]{
				Candidates: cs,
				Default:    func() signalSet { return signalSet{} },
			})
			st.Symbols = sortedKeys(out.Value)
			st.applyOutcome(out, st.Symbols)
			return nil
		}},
		storageStep(cfg),
	)
}

func sourceTier(i int) fallback.Tier {
	switch i {
	case 0:
		return fallback.TierHigh
	case 1:
		return fallback.TierMedium
	default:
		return fallback.TierLow
	}
}

func appendModel(cs []fallback.Candidate[signalSet], m Model, tier fallback.Tier, timeout time.Duration, st *State) []fallback.Candidate[signalSet] {
	if c, ok := modelCandidate(m, tier, timeout, st); ok {
		return append(cs, c)
	}
	return cs
}

// initStep picks the units for the run.
func initStep(cfg Config) Step {
	return Step{Stage: core.StageInit, Do: func(ctx context.Context, st *State) error {
		symbols := cfg.Watchlist
		if raw := st.Resolution.Param(ParamSymbols, ""); raw != "" {
			symbols = strings.Split(raw, ",")
		}
		st.Symbols = normalizeSymbols(symbols)
		if len(st.Symbols) == 0 {
			return ErrNoUnits
		}
		return nil
	}}
}

// storageStep hands the result to the report sink.
func storageStep(cfg Config) Step {
	return Step{Stage: core.StageStorage, Do: func(ctx context.Context, st *State) error {
		if cfg.Sink == nil {
			return errNoSink
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.CollaboratorTimeout)
		defer cancel()
		report := &Report{
			RunID:         st.Recorder.RunID(),
			JobType:       st.Resolution.JobType,
			ScheduledDate: st.Resolution.ScheduledDate,
			Window:        st.Resolution.Window,
			Result:        st.Result(),
			GeneratedAt:   time.Now().UTC(),
		}
		if err := cfg.Sink.Save(cctx, report); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		return nil
	}}
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func lookbackDays(st *State) int {
	n, err := strconv.Atoi(st.Resolution.Param(ParamLookbackDays, "5"))
	if err != nil || n < 2 {
		return 5
	}
	return n
}
