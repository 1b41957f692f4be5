package collab

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/executor"
)

// Market is an executor.MarketData over HTTP.
//
//	GET /quotes?symbols=A,B      -> {"quotes": {"A": Quote}}
//	GET /history/{symbol}?days=N -> {"bars": [Bar]}
type Market struct {
	c *Client
}

var _ executor.MarketData = (*Market)(nil)

// NewMarket returns a market data client.
func NewMarket(baseURL string, opts ...ClientOption) *Market {
	return &Market{c: NewClient("market_data", baseURL, opts...)}
}

// Quotes implements executor.MarketData.
func (m *Market) Quotes(ctx context.Context, symbols []string) (map[string]executor.Quote, error) {
	var resp struct {
		Quotes map[string]executor.Quote `json:"quotes"`
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if err := m.c.get(ctx, "/quotes", q, &resp); err != nil {
		return nil, err
	}
	return resp.Quotes, nil
}

// History implements executor.MarketData.
func (m *Market) History(ctx context.Context, symbol string, days int) ([]executor.Bar, error) {
	var resp struct {
		Bars []executor.Bar `json:"bars"`
	}
	q := url.Values{"days": {strconv.Itoa(days)}}
	if err := m.c.get(ctx, "/history/"+url.PathEscape(symbol), q, &resp); err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

// News is an executor.NewsFeed over HTTP.
//
//	GET /headlines?symbols=A,B -> {"headlines": {"A": [Headline]}}
type News struct {
	c *Client
}

var _ executor.NewsFeed = (*News)(nil)

// NewNews returns a news client.
func NewNews(baseURL string, opts ...ClientOption) *News {
	return &News{c: NewClient("news", baseURL, opts...)}
}

// Headlines implements executor.NewsFeed.
func (n *News) Headlines(ctx context.Context, symbols []string) (map[string][]executor.Headline, error) {
	var resp struct {
		Headlines map[string][]executor.Headline `json:"headlines"`
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if err := n.c.get(ctx, "/headlines", q, &resp); err != nil {
		return nil, err
	}
	return resp.Headlines, nil
}

// Model is an executor.Model over HTTP.
//
//	POST /analyze AnalysisRequest -> {"signals": {"A": Signal}}
type Model struct {
	name string
	c    *Client
}

var _ executor.Model = (*Model)(nil)

// NewModel returns a model client named name.
func NewModel(name, baseURL string, opts ...ClientOption) *Model {
	return &Model{name: name, c: NewClient(name, baseURL, opts...)}
}

// Name implements executor.Model.
func (m *Model) Name() string { return m.name }

// Analyze implements executor.Model. Signals without a source are
// attributed to the model.
func (m *Model) Analyze(ctx context.Context, req executor.AnalysisRequest) (map[string]core.Signal, error) {
	var resp struct {
		Signals map[string]core.Signal `json:"signals"`
	}
	if err := m.c.post(ctx, "/analyze", req, &resp); err != nil {
		return nil, err
	}
	return stamp(resp.Signals, m.name), nil
}

// SideFeed is an executor.SideChannel over HTTP.
//
//	GET /signals?date=YYYY-MM-DD -> {"signals": {"unit": Signal}}
type SideFeed struct {
	name string
	c    *Client
}

var _ executor.SideChannel = (*SideFeed)(nil)

// NewSideFeed returns a side-channel client named name.
func NewSideFeed(name, baseURL string, opts ...ClientOption) *SideFeed {
	return &SideFeed{name: name, c: NewClient(name, baseURL, opts...)}
}

// Name implements executor.SideChannel.
func (s *SideFeed) Name() string { return s.name }

// Fetch implements executor.SideChannel.
func (s *SideFeed) Fetch(ctx context.Context, scheduledDate string) (map[string]core.Signal, error) {
	var resp struct {
		Signals map[string]core.Signal `json:"signals"`
	}
	if err := s.c.get(ctx, "/signals", url.Values{"date": {scheduledDate}}, &resp); err != nil {
		return nil, err
	}
	return stamp(resp.Signals, s.name), nil
}

// ParseSideFeeds parses "name=url,name=url". A bare URL is named by its
// position.
func ParseSideFeeds(spec string, opts ...ClientOption) []executor.SideChannel {
	var out []executor.SideChannel
	for i, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, u, ok := strings.Cut(part, "=")
		if !ok {
			name, u = "side"+strconv.Itoa(i+1), part
		}
		out = append(out, NewSideFeed(strings.TrimSpace(name), strings.TrimSpace(u), opts...))
	}
	return out
}

func stamp(signals map[string]core.Signal, source string) map[string]core.Signal {
	for unit, sig := range signals {
		if sig.Unit == "" {
			sig.Unit = unit
		}
		if sig.Source == "" {
			sig.Source = source
		}
		signals[unit] = sig
	}
	return signals
}
