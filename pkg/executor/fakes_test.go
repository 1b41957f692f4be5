package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
)

var errOutage = errors.New("upstream 503")

type fakeMarket struct {
	quotes     map[string]Quote
	quoteErr   error
	history    map[string][]Bar
	historyErr map[string]error
	inFlight   atomic.Int32
	peak       atomic.Int32
}

func (f *fakeMarket) Quotes(_ context.Context, symbols []string) (map[string]Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	out := map[string]Quote{}
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeMarket) History(_ context.Context, symbol string, _ int) ([]Bar, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	if err := f.historyErr[symbol]; err != nil {
		return nil, err
	}
	return f.history[symbol], nil
}

type fakeNews struct {
	err error
}

func (f *fakeNews) Headlines(_ context.Context, symbols []string) (map[string][]Headline, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string][]Headline{}
	for _, s := range symbols {
		out[s] = []Headline{{Symbol: s, Title: s + " beats estimates"}}
	}
	return out, nil
}

type fakeModel struct {
	name    string
	signals map[string]core.Signal
	err     error
	calls   atomic.Int32
	lastReq AnalysisRequest
	mu      sync.Mutex
}

func (f *fakeModel) Name() string { return f.name }

func (f *fakeModel) Analyze(_ context.Context, req AnalysisRequest) (map[string]core.Signal, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.signals, nil
}

type fakeSide struct {
	name    string
	signals map[string]core.Signal
	err     error
}

func (f *fakeSide) Name() string { return f.name }

func (f *fakeSide) Fetch(context.Context, string) (map[string]core.Signal, error) {
	return f.signals, f.err
}

type fakeSink struct {
	mu      sync.Mutex
	reports []*Report
	err     error
}

func (f *fakeSink) Save(_ context.Context, r *Report) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.reports = append(f.reports, r)
	f.mu.Unlock()
	return nil
}

var watchlist = []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOG"}

func goodSignals(symbols ...string) map[string]core.Signal {
	out := make(map[string]core.Signal, len(symbols))
	for _, s := range symbols {
		out[s] = core.Signal{Unit: s, Direction: core.Bullish, Confidence: 0.8, Rationale: "strong guidance"}
	}
	return out
}

func quotesFor(symbols ...string) map[string]Quote {
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		out[s] = Quote{Symbol: s, Price: 101, PrevClose: 100}
	}
	return out
}

// trendBars returns n bars moving by step each day from start.
func trendBars(n int, start, step float64) []Bar {
	bars := make([]Bar, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = Bar{Date: day.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func historyFor(n int, step float64, symbols ...string) map[string][]Bar {
	out := make(map[string][]Bar, len(symbols))
	for _, s := range symbols {
		out[s] = trendBars(n, 100, step)
	}
	return out
}

func resolution(jt core.JobType) schedule.Resolution {
	return schedule.Resolution{
		JobType:       jt,
		Source:        core.SourceScheduled,
		Window:        string(jt),
		ScheduledDate: "2024-01-02",
	}
}

func newRecorder(e Executor) *tracking.Recorder {
	run := &core.Run{ID: "run-1", JobType: e.JobType(), ScheduledDate: "2024-01-02", Status: core.RunRunning}
	return tracking.NewRecorder(nil, nil, run, e.Stages())
}
