package schedule

import (
	"fmt"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// Attribution decides which business date a fire instant belongs to.
type Attribution int

const (
	// SameDay attributes to the calendar day of the instant.
	SameDay Attribution = iota
	// LastTradingDay attributes to the instant's day, or the preceding Friday on weekends.
	LastTradingDay
	// PreviousTradingDay attributes to the weekday strictly before the instant's day.
	PreviousTradingDay
)

func (a Attribution) String() string {
	switch a {
	case SameDay:
		return "SameDay"
	case LastTradingDay:
		return "LastTradingDay"
	case PreviousTradingDay:
		return "PreviousTradingDay"
	default:
		return "Unknown"
	}
}

// BusinessDate returns the YYYY-MM-DD business date for t, which must
// already be in the home location.
func (a Attribution) BusinessDate(t time.Time) string {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch a {
	case LastTradingDay:
		for !isWeekday(day) {
			day = day.AddDate(0, 0, -1)
		}
	case PreviousTradingDay:
		day = day.AddDate(0, 0, -1)
		for !isWeekday(day) {
			day = day.AddDate(0, 0, -1)
		}
	}
	return day.Format(core.DateLayout)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Window is one row of the trigger table.
type Window struct {
	// Name identifies the window in logs and on the run record.
	Name string
	// JobType is the work the window resolves to.
	JobType core.JobType
	// Spec is a five-field cron expression matched minute-exact.
	Spec string
	// Attribution maps the fire instant to a business date.
	Attribution Attribution
	// Params are handed to the executor unchanged.
	Params map[string]string

	schedule Schedule
}

func (w *Window) compile() error {
	if w.Name == "" {
		return fmt.Errorf("window for %s: empty name", w.JobType)
	}
	if !w.JobType.Valid() {
		return fmt.Errorf("window %s: %w: %q", w.Name, core.ErrUnknownJobType, w.JobType)
	}
	s, err := ParseCron(w.Spec)
	if err != nil {
		return fmt.Errorf("window %s: %w", w.Name, err)
	}
	w.schedule = s
	return nil
}

// Matches reports whether t, in the home location, falls on a minute the
// window fires. Seconds are ignored; any other deviation is a miss.
func (w *Window) Matches(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return w.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// Next returns the next fire instant strictly after from.
func (w *Window) Next(from time.Time) time.Time {
	return w.schedule.Next(from)
}

// DefaultWindows returns the production trigger table. Order matters:
// the first matching window wins.
func DefaultWindows() []Window {
	return []Window{
		{Name: "pre-market", JobType: core.JobPreMarket, Spec: "30 12 * * 1-5", Attribution: SameDay,
			Params: map[string]string{"session": "pre-open"}},
		{Name: "intraday-midday", JobType: core.JobIntraday, Spec: "0 15 * * 1-5", Attribution: SameDay,
			Params: map[string]string{"session": "midday"}},
		{Name: "intraday-late", JobType: core.JobIntraday, Spec: "0 18 * * 1-5", Attribution: SameDay,
			Params: map[string]string{"session": "late"}},
		{Name: "end-of-day", JobType: core.JobEndOfDay, Spec: "15 21 * * 1-5", Attribution: SameDay,
			Params: map[string]string{"session": "close"}},
		{Name: "weekly-review", JobType: core.JobWeeklyReview, Spec: "0 14 * * 6", Attribution: LastTradingDay,
			Params: map[string]string{"lookback_days": "5"}},
		{Name: "side-refresh-overnight", JobType: core.JobSideRefresh, Spec: "0 2 * * *", Attribution: PreviousTradingDay},
		{Name: "side-refresh-morning", JobType: core.JobSideRefresh, Spec: "0 8 * * *", Attribution: LastTradingDay},
	}
}
