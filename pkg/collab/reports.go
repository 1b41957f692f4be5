package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/executor"
)

// ErrReportNotFound is returned when no report exists.
var ErrReportNotFound = errors.New("collab: report not found")

// ReportRecord is one stored report. The job result is msgpack encoded.
type ReportRecord struct {
	ID            uint         `gorm:"primaryKey"`
	RunID         string       `gorm:"uniqueIndex;size:36;not null"`
	JobType       core.JobType `gorm:"index:idx_reports_key;size:32;not null"`
	ScheduledDate string       `gorm:"index:idx_reports_key;size:10;not null"`
	Window        string       `gorm:"column:window_name;size:64"`
	Units         int
	Payload       []byte
	GeneratedAt   time.Time `gorm:"index"`
}

// TableName implements gorm's Tabler.
func (ReportRecord) TableName() string { return "reports" }

// ReportStore is an executor.ReportSink backed by GORM.
type ReportStore struct {
	db *gorm.DB
}

var _ executor.ReportSink = (*ReportStore)(nil)

// NewReportStore returns a report store on db.
func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Migrate creates the reports table.
func (s *ReportStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ReportRecord{})
}

// Save implements executor.ReportSink. Reports are append-only; saving a
// second report for the same run fails.
func (s *ReportStore) Save(ctx context.Context, r *executor.Report) error {
	payload, err := msgpack.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("collab: encode report %s: %w", r.RunID, err)
	}
	rec := &ReportRecord{
		RunID:         r.RunID,
		JobType:       r.JobType,
		ScheduledDate: r.ScheduledDate,
		Window:        r.Window,
		Payload:       payload,
		GeneratedAt:   r.GeneratedAt,
	}
	if r.Result != nil {
		rec.Units = r.Result.UnitsProcessed
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("collab: save report %s: %w", r.RunID, err)
	}
	return nil
}

// Latest returns the newest report for key.
func (s *ReportStore) Latest(ctx context.Context, key core.RunKey) (*executor.Report, error) {
	var rec ReportRecord
	err := s.db.WithContext(ctx).
		Where("job_type = ? AND scheduled_date = ?", key.JobType, key.ScheduledDate).
		Order("generated_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.decode()
}

// ForRun returns the report written by runID.
func (s *ReportStore) ForRun(ctx context.Context, runID string) (*executor.Report, error) {
	var rec ReportRecord
	err := s.db.WithContext(ctx).First(&rec, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.decode()
}

func (rec *ReportRecord) decode() (*executor.Report, error) {
	var result *core.JobResult
	if err := msgpack.Unmarshal(rec.Payload, &result); err != nil {
		return nil, fmt.Errorf("collab: decode report %s: %w", rec.RunID, err)
	}
	return &executor.Report{
		RunID:         rec.RunID,
		JobType:       rec.JobType,
		ScheduledDate: rec.ScheduledDate,
		Window:        rec.Window,
		Result:        result,
		GeneratedAt:   rec.GeneratedAt,
	}, nil
}
