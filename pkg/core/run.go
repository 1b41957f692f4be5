package core

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// RunStatus represents the state of a run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunPartial || s == RunFailed
}

// Valid reports whether s is one of the four run states.
func (s RunStatus) Valid() bool {
	return s == RunRunning || s.IsTerminal()
}

// StageStatus represents the state of a stage within a run.
type StageStatus string

const (
	StageRunning StageStatus = "running"
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
)

// StageName names a phase of a run.
type StageName string

const (
	StageInit       StageName = "init"
	StageDataFetch  StageName = "data_fetch"
	StageAIAnalysis StageName = "ai_analysis"
	StageStorage    StageName = "storage"
)

// DateLayout is the layout of business dates.
const DateLayout = "2006-01-02"

// Run is one execution attempt of one JobType for one business date.
// Rows are append-only: never deleted, never modified after completion.
type Run struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	JobType       JobType       `gorm:"index:idx_runs_key;size:32;not null" json:"job_type"`
	ScheduledDate string        `gorm:"index:idx_runs_key;size:10;not null" json:"scheduled_date"`
	TriggerSource TriggerSource `gorm:"size:16;not null" json:"trigger_source"`
	Window        string        `gorm:"column:window_name;size:64" json:"window"`
	Status        RunStatus     `gorm:"index;size:16;default:'running'" json:"status"`
	Warnings      StringList    `gorm:"type:text" json:"warnings"`
	Errors        StringList    `gorm:"type:text" json:"errors"`
	StartedAt     time.Time     `gorm:"index" json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Stages        []Stage       `gorm:"foreignKey:RunID" json:"stages"`
}

// Key returns the idempotency key of the run.
func (r *Run) Key() RunKey {
	return RunKey{JobType: r.JobType, ScheduledDate: r.ScheduledDate}
}

// Stage is one named phase within a run.
type Stage struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	RunID     string      `gorm:"uniqueIndex:idx_stage_run_name;size:36;not null" json:"run_id"`
	Name      StageName   `gorm:"uniqueIndex:idx_stage_run_name;size:32;not null" json:"name"`
	Position  int         `gorm:"not null" json:"position"`
	Status    StageStatus `gorm:"size:16;default:'running'" json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Errors    StringList  `gorm:"type:text" json:"errors"`
}

// TableName keeps stage rows next to their runs.
func (Stage) TableName() string { return "run_stages" }

// RunKey is the (jobType, scheduledDate) pair owning a disjoint key space.
type RunKey struct {
	JobType       JobType `json:"job_type"`
	ScheduledDate string  `json:"scheduled_date"`
}

func (k RunKey) String() string {
	return string(k.JobType) + "/" + k.ScheduledDate
}

// RunSummary is the latest known run for a key. Written with an upsert so
// concurrent runs for the same key resolve last-write-wins.
type RunSummary struct {
	JobType       JobType       `gorm:"primaryKey;size:32" json:"job_type"`
	ScheduledDate string        `gorm:"primaryKey;size:10" json:"scheduled_date"`
	RunID         string        `gorm:"size:36;not null" json:"run_id"`
	Status        RunStatus     `gorm:"size:16" json:"status"`
	TriggerSource TriggerSource `gorm:"size:16" json:"trigger_source"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// StringList is a list of messages stored as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return ErrUnsupportedColumn
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}
