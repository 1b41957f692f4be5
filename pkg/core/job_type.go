package core

import "fmt"

// JobType identifies the kind of report-generation work to perform.
// The set is closed; see JobTypes.
type JobType string

const (
	JobPreMarket    JobType = "pre-market"
	JobIntraday     JobType = "intraday"
	JobEndOfDay     JobType = "end-of-day"
	JobWeeklyReview JobType = "weekly-review"
	JobSideRefresh  JobType = "side-refresh"
)

var jobTypes = []JobType{
	JobPreMarket,
	JobIntraday,
	JobEndOfDay,
	JobWeeklyReview,
	JobSideRefresh,
}

// JobTypes returns every known job type in declaration order.
func JobTypes() []JobType {
	out := make([]JobType, len(jobTypes))
	copy(out, jobTypes)
	return out
}

// Valid reports whether t belongs to the closed set.
func (t JobType) Valid() bool {
	for _, known := range jobTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t JobType) String() string { return string(t) }

// ParseJobType converts s into a JobType, rejecting anything outside the closed set.
func ParseJobType(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, s)
	}
	return t, nil
}

// TriggerSource records what started a run. Immutable once the run exists.
type TriggerSource string

const (
	SourceScheduled TriggerSource = "scheduled"
	SourceManual    TriggerSource = "manual"
)

// Valid reports whether s is a known trigger source.
func (s TriggerSource) Valid() bool {
	return s == SourceScheduled || s == SourceManual
}
