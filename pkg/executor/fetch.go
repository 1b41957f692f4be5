package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jdziat/simple-report-runs/pkg/jobctx"
)

var errEmptyHistory = errors.New("empty history")

// fetchQuotes loads quotes for every symbol. Quotes are required: a failed
// call or an empty answer is an outage.
func (s *State) fetchQuotes(ctx context.Context, md MarketData, timeout time.Duration) error {
	if md == nil {
		return fmt.Errorf("quotes: %w: no market data source configured", ErrDataOutage)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	quotes, err := md.Quotes(cctx, s.Symbols)
	if err != nil {
		return fmt.Errorf("quotes: %w: %w", ErrDataOutage, err)
	}

	var keep, missing []string
	for _, sym := range s.Symbols {
		if q, ok := quotes[sym]; ok && q.Price > 0 {
			keep = append(keep, sym)
		} else {
			missing = append(missing, sym)
		}
	}
	if len(keep) == 0 {
		return fmt.Errorf("quotes: %w: no symbol returned a price", ErrDataOutage)
	}
	if len(missing) > 0 {
		s.Degrade("no quote for %d of %d symbols: %s", len(missing), len(s.Symbols), strings.Join(missing, ", "))
	}
	s.Quotes = quotes
	s.Symbols = keep
	return nil
}

// fetchHistory loads daily bars per symbol with bounded concurrency.
// Symbols that fail are dropped; if every symbol fails it is an outage.
func (s *State) fetchHistory(ctx context.Context, md MarketData, days, limit int, timeout time.Duration) error {
	if md == nil {
		return fmt.Errorf("history: %w: no market data source configured", ErrDataOutage)
	}
	log := jobctx.Logger(ctx)

	type result struct {
		bars []Bar
		err  error
	}
	results := make([]result, len(s.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sym := range s.Symbols {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			bars, err := md.History(cctx, sym, days)
			if err == nil && len(bars) == 0 {
				err = errEmptyHistory
			}
			if err != nil {
				log.Debug().Err(err).Str("symbol", sym).Msg("history fetch failed")
			}
			results[i] = result{bars: bars, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	history := make(map[string][]Bar, len(s.Symbols))
	var keep, missing []string
	for i, sym := range s.Symbols {
		if results[i].err != nil {
			missing = append(missing, sym)
			continue
		}
		history[sym] = results[i].bars
		keep = append(keep, sym)
	}
	if len(keep) == 0 {
		return fmt.Errorf("history: %w: all %d symbols failed", ErrDataOutage, len(s.Symbols))
	}
	if len(missing) > 0 {
		s.Degrade("no history for %d of %d symbols: %s", len(missing), len(s.Symbols), strings.Join(missing, ", "))
	}
	s.History = history
	s.Symbols = keep
	return nil
}

// fetchHeadlines loads news. News is optional: failure degrades the run
// but never fails the stage.
func (s *State) fetchHeadlines(ctx context.Context, nf NewsFeed, timeout time.Duration) {
	if nf == nil {
		s.Note("no news feed configured")
		return
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headlines, err := nf.Headlines(cctx, s.Symbols)
	if err != nil {
		s.Degrade("headlines unavailable: %v", err)
		return
	}
	s.Headlines = headlines
}
