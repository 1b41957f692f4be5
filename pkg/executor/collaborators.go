package executor

import (
	"context"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Quote is a point-in-time price for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol" msgpack:"symbol"`
	Price     float64   `json:"price" msgpack:"price"`
	PrevClose float64   `json:"prev_close" msgpack:"prev_close"`
	Volume    int64     `json:"volume" msgpack:"volume"`
	At        time.Time `json:"at" msgpack:"at"`
}

// ChangePct returns the move from the previous close in percent.
func (q Quote) ChangePct() float64 {
	if q.PrevClose == 0 {
		return 0
	}
	return (q.Price - q.PrevClose) / q.PrevClose * 100
}

// Bar is one daily OHLCV bar.
type Bar struct {
	Date   time.Time `json:"date" msgpack:"date"`
	Open   float64   `json:"open" msgpack:"open"`
	High   float64   `json:"high" msgpack:"high"`
	Low    float64   `json:"low" msgpack:"low"`
	Close  float64   `json:"close" msgpack:"close"`
	Volume int64     `json:"volume" msgpack:"volume"`
}

// Headline is one news item.
type Headline struct {
	Symbol      string    `json:"symbol" msgpack:"symbol"`
	Title       string    `json:"title" msgpack:"title"`
	Source      string    `json:"source" msgpack:"source"`
	PublishedAt time.Time `json:"published_at" msgpack:"published_at"`
}

// AnalysisRequest is what a Model receives.
type AnalysisRequest struct {
	JobType       core.JobType          `json:"job_type"`
	ScheduledDate string                `json:"scheduled_date"`
	Symbols       []string              `json:"symbols"`
	Quotes        map[string]Quote      `json:"quotes,omitempty"`
	History       map[string][]Bar      `json:"history,omitempty"`
	Headlines     map[string][]Headline `json:"headlines,omitempty"`
	Params        map[string]string     `json:"params,omitempty"`
}

// MarketData supplies prices.
type MarketData interface {
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	History(ctx context.Context, symbol string, days int) ([]Bar, error)
}

// NewsFeed supplies headlines per symbol.
type NewsFeed interface {
	Headlines(ctx context.Context, symbols []string) (map[string][]Headline, error)
}

// Model turns market context into signals. Implementations are usually
// paid remote calls.
type Model interface {
	Name() string
	Analyze(ctx context.Context, req AnalysisRequest) (map[string]core.Signal, error)
}

// SideChannel is an auxiliary signal source refreshed on its own schedule,
// such as a market breadth or sentiment index feed.
type SideChannel interface {
	Name() string
	Fetch(ctx context.Context, scheduledDate string) (map[string]core.Signal, error)
}

// Report is what gets written to a ReportSink.
type Report struct {
	RunID         string          `json:"run_id" msgpack:"run_id"`
	JobType       core.JobType    `json:"job_type" msgpack:"job_type"`
	ScheduledDate string          `json:"scheduled_date" msgpack:"scheduled_date"`
	Window        string          `json:"window" msgpack:"window"`
	Result        *core.JobResult `json:"result" msgpack:"result"`
	GeneratedAt   time.Time       `json:"generated_at" msgpack:"generated_at"`
}

// ReportSink persists generated reports.
type ReportSink interface {
	Save(ctx context.Context, report *Report) error
}
