package stats

import (
	"context"
	"time"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// RunStat stores per job type outcome counts for one time bucket. The row
// with an empty JobType counts triggers rejected before a job type was
// known.
type RunStat struct {
	ID        uint         `gorm:"primaryKey" json:"-"`
	JobType   core.JobType `gorm:"index:idx_run_stats_type_ts;size:32" json:"job_type"`
	Timestamp time.Time    `gorm:"index:idx_run_stats_type_ts;not null" json:"timestamp"`
	Started   int64        `gorm:"default:0" json:"started"`
	Success   int64        `gorm:"default:0" json:"success"`
	Partial   int64        `gorm:"default:0" json:"partial"`
	Failed    int64        `gorm:"default:0" json:"failed"`
	Rejected  int64        `gorm:"default:0" json:"rejected"`
	Running   int64        `gorm:"default:0" json:"running"`

	// DurationMs is the summed duration of completed runs.
	DurationMs int64 `gorm:"default:0" json:"duration_ms"`
}

// TableName pins the table name.
func (RunStat) TableName() string { return "run_stats" }

// Counters are the increments flushed into one bucket.
type Counters struct {
	Started    int64
	Success    int64
	Partial    int64
	Failed     int64
	Rejected   int64
	DurationMs int64
}

func (c *Counters) empty() bool {
	return c.Started == 0 && c.Success == 0 && c.Partial == 0 && c.Failed == 0 && c.Rejected == 0
}

// Storage is the interface for stats persistence.
type Storage interface {
	MigrateStats(ctx context.Context) error
	AddCounters(ctx context.Context, jobType core.JobType, bucket time.Time, c Counters) error
	SnapshotRunning(ctx context.Context, jobType core.JobType, bucket time.Time, running int64) error
	History(ctx context.Context, jobType core.JobType, since, until time.Time) ([]RunStat, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
