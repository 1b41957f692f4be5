package executor

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Indicator periods.
const (
	fastEMA   = 12
	slowEMA   = 26
	shortSMA  = 20
	longSMA   = 50
	rsiPeriod = 14

	// momentumThreshold is the move, in percent, below which a quote is
	// read as neutral.
	momentumThreshold = 0.5
)

// Heuristic candidate names.
const (
	RuleQuoteMomentum = "rule:quote-momentum"
	RuleEMACrossover  = "rule:ema-crossover"
	RuleTrendRSI      = "rule:trend-rsi"
	RuleWeeklyStats   = "rule:weekly-stats"
)

func closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// last returns the final value of an indicator series.
func last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func clampConfidence(c float64) float64 {
	return math.Min(0.9, math.Max(0.1, c))
}

// QuoteMomentum reads the overnight move of each quote.
func QuoteMomentum(quotes map[string]Quote, symbols []string) map[string]core.Signal {
	out := make(map[string]core.Signal, len(symbols))
	for _, sym := range symbols {
		q, ok := quotes[sym]
		if !ok || q.PrevClose <= 0 {
			continue
		}
		chg := q.ChangePct()
		dir := core.Neutral
		switch {
		case chg >= momentumThreshold:
			dir = core.Bullish
		case chg <= -momentumThreshold:
			dir = core.Bearish
		}
		out[sym] = core.Signal{
			Unit:       sym,
			Direction:  dir,
			Confidence: clampConfidence(0.3 + math.Abs(chg)/5),
			Source:     RuleQuoteMomentum,
			Rationale:  fmt.Sprintf("%+.2f%% from previous close", chg),
		}
	}
	return out
}

// EMACrossover compares the fast and slow exponential averages.
func EMACrossover(history map[string][]Bar, symbols []string) map[string]core.Signal {
	out := make(map[string]core.Signal, len(symbols))
	for _, sym := range symbols {
		c := closes(history[sym])
		if len(c) <= slowEMA {
			continue
		}
		fast, ok1 := last(talib.Ema(c, fastEMA))
		slow, ok2 := last(talib.Ema(c, slowEMA))
		if !ok1 || !ok2 || slow == 0 {
			continue
		}
		spread := (fast - slow) / slow
		dir := core.Bullish
		if spread < 0 {
			dir = core.Bearish
		}
		out[sym] = core.Signal{
			Unit:       sym,
			Direction:  dir,
			Confidence: clampConfidence(math.Abs(spread) * 20),
			Source:     RuleEMACrossover,
			Rationale:  fmt.Sprintf("EMA%d %.2f vs EMA%d %.2f", fastEMA, fast, slowEMA, slow),
		}
	}
	return out
}

// TrendRSI follows the SMA trend unless RSI marks the symbol overbought
// or oversold.
func TrendRSI(history map[string][]Bar, symbols []string) map[string]core.Signal {
	out := make(map[string]core.Signal, len(symbols))
	for _, sym := range symbols {
		c := closes(history[sym])
		if len(c) < longSMA {
			continue
		}
		short, ok1 := last(talib.Sma(c, shortSMA))
		long, ok2 := last(talib.Sma(c, longSMA))
		rsi, ok3 := last(talib.Rsi(c, rsiPeriod))
		if !ok1 || !ok2 || !ok3 || long == 0 {
			continue
		}

		spread := (short - long) / long
		dir := core.Bullish
		if spread < 0 {
			dir = core.Bearish
		}
		conf := clampConfidence(math.Abs(spread) * 10)
		switch {
		case rsi >= 70:
			dir, conf = core.Bearish, clampConfidence((rsi-50)/50)
		case rsi <= 30:
			dir, conf = core.Bullish, clampConfidence((50-rsi)/50)
		}
		out[sym] = core.Signal{
			Unit:       sym,
			Direction:  dir,
			Confidence: conf,
			Source:     RuleTrendRSI,
			Rationale:  fmt.Sprintf("SMA%d/SMA%d spread %+.2f%%, RSI %.1f", shortSMA, longSMA, spread*100, rsi),
		}
	}
	return out
}

// WeeklyStats summarizes daily returns over a lookback window.
type WeeklyStats struct {
	Days      int     `json:"days" msgpack:"days"`
	Return    float64 `json:"return" msgpack:"return"`
	MeanDaily float64 `json:"mean_daily" msgpack:"mean_daily"`
	StdDaily  float64 `json:"std_daily" msgpack:"std_daily"`
	// Score is the mean daily return over its standard error.
	Score float64 `json:"score" msgpack:"score"`
}

// ComputeWeeklyStats uses the last lookback daily returns of bars.
func ComputeWeeklyStats(bars []Bar, lookback int) (WeeklyStats, bool) {
	c := closes(bars)
	if lookback < 2 || len(c) < lookback+1 {
		return WeeklyStats{}, false
	}
	c = c[len(c)-lookback-1:]
	returns := make([]float64, 0, lookback)
	for i := 1; i < len(c); i++ {
		if c[i-1] == 0 {
			return WeeklyStats{}, false
		}
		returns = append(returns, c[i]/c[i-1]-1)
	}

	mean, std := stat.MeanStdDev(returns, nil)
	ws := WeeklyStats{
		Days:      len(returns),
		Return:    c[len(c)-1]/c[0] - 1,
		MeanDaily: mean,
		StdDaily:  std,
	}
	if std > 0 {
		ws.Score = mean / (std / math.Sqrt(float64(len(returns))))
	}
	return ws, true
}

// WeeklyTrend turns weekly statistics into signals.
func WeeklyTrend(history map[string][]Bar, symbols []string, lookback int) (map[string]core.Signal, map[string]WeeklyStats) {
	out := make(map[string]core.Signal, len(symbols))
	stats := make(map[string]WeeklyStats, len(symbols))
	for _, sym := range symbols {
		ws, ok := ComputeWeeklyStats(history[sym], lookback)
		if !ok {
			continue
		}
		stats[sym] = ws
		dir := core.Neutral
		switch {
		case ws.Score > 1:
			dir = core.Bullish
		case ws.Score < -1:
			dir = core.Bearish
		}
		out[sym] = core.Signal{
			Unit:       sym,
			Direction:  dir,
			Confidence: clampConfidence(math.Abs(ws.Score) / 4),
			Source:     RuleWeeklyStats,
			Rationale:  fmt.Sprintf("%d-day return %+.2f%%, score %.2f", ws.Days, ws.Return*100, ws.Score),
		}
	}
	return out, stats
}
