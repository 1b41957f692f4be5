// Package storage provides storage implementations for the runs package.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/security"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// GormStorage implements core.RunStore using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.RunStore = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Run{}, &core.Stage{}, &core.RunSummary{})
}

// CreateRun inserts a new run row and points the key's summary at it.
func (s *GormStorage) CreateRun(ctx context.Context, run *core.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = core.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return err
		}
		return upsertSummary(tx, run.Key(), run.ID, run.Status, run.TriggerSource, run.StartedAt)
	})
}

// StartStage opens a stage on a running run.
func (s *GormStorage) StartStage(ctx context.Context, stage *core.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.New().String()
	}
	stage.Status = core.StageRunning
	stage.EndedAt = nil
	if stage.StartedAt.IsZero() {
		stage.StartedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run core.Run
		if err := tx.Select("id", "status").First(&run, "id = ?", stage.RunID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrRunNotFound
			}
			return err
		}
		if run.Status.IsTerminal() {
			return core.ErrRunCompleted
		}

		var count int64
		if err := tx.Model(&core.Stage{}).
			Where("run_id = ? AND name = ?", stage.RunID, stage.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return core.ErrStageExists
		}
		return tx.Create(stage).Error
	})
}

// EndStage closes an open stage. Closing a stage that is not open returns
// core.ErrStageNotOpen and changes nothing.
func (s *GormStorage) EndStage(ctx context.Context, runID string, name core.StageName, status core.StageStatus, errs []string, endedAt time.Time) error {
	if status != core.StageSuccess && status != core.StageFailed {
		return core.ErrInvalidStatus
	}
	result := s.db.WithContext(ctx).
		Model(&core.Stage{}).
		Where("run_id = ? AND name = ? AND status = ?", runID, name, core.StageRunning).
		Updates(map[string]any{
			"status":   status,
			"ended_at": endedAt,
			"errors":   core.StringList(security.SanitizeMessages(errs)),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrStageNotOpen
	}
	return nil
}

// StageEndNotRecorded is the error stored on stages that CompleteRun finds
// still running.
const StageEndNotRecorded = "stage end not recorded"

// CompleteRun moves a running run to a terminal status. Stages still
// running are closed as failed first. The run is immutable afterwards.
func (s *GormStorage) CompleteRun(ctx context.Context, runID string, status core.RunStatus, warnings, errs []string, completedAt time.Time) error {
	if !status.IsTerminal() {
		return core.ErrInvalidStatus
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run core.Run
		if err := tx.First(&run, "id = ?", runID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrRunNotFound
			}
			return err
		}
		if run.Status.IsTerminal() {
			return core.ErrRunCompleted
		}

		// A stage still running here lost its end write; it cannot hold the
		// run open.
		if err := tx.Model(&core.Stage{}).
			Where("run_id = ? AND status = ?", runID, core.StageRunning).
			Updates(map[string]any{
				"status":   core.StageFailed,
				"ended_at": completedAt,
				"errors":   core.StringList{StageEndNotRecorded},
			}).Error; err != nil {
			return err
		}

		result := tx.Model(&core.Run{}).
			Where("id = ? AND status = ?", runID, core.RunRunning).
			Updates(map[string]any{
				"status":       status,
				"warnings":     core.StringList(security.SanitizeMessages(warnings)),
				"errors":       core.StringList(security.SanitizeMessages(errs)),
				"completed_at": completedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return core.ErrRunCompleted
		}
		return upsertSummary(tx, run.Key(), run.ID, status, run.TriggerSource, completedAt)
	})
}

// upsertSummary overwrites the summary row for key. Last write wins.
func upsertSummary(tx *gorm.DB, key core.RunKey, runID string, status core.RunStatus, source core.TriggerSource, at time.Time) error {
	summary := core.RunSummary{
		JobType:       key.JobType,
		ScheduledDate: key.ScheduledDate,
		RunID:         runID,
		Status:        status,
		TriggerSource: source,
		UpdatedAt:     at,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_type"}, {Name: "scheduled_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"run_id", "status", "trigger_source", "updated_at"}),
	}).Create(&summary).Error
}

// GetRun retrieves a run with its stages in declared order.
func (s *GormStorage) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run core.Run
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *GormStorage) ListRuns(ctx context.Context, filter core.RunFilter) ([]*core.Run, error) {
	q := s.db.WithContext(ctx).Model(&core.Run{})
	if filter.JobType != "" {
		q = q.Where("job_type = ?", filter.JobType)
	}
	if filter.ScheduledDate != "" {
		q = q.Where("scheduled_date = ?", filter.ScheduledDate)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var runs []*core.Run
	err := q.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).
		Order("started_at DESC").
		Limit(clampLimit(filter.Limit)).
		Find(&runs).Error
	return runs, err
}

// GetSummary returns the latest run pointer for key.
func (s *GormStorage) GetSummary(ctx context.Context, key core.RunKey) (*core.RunSummary, error) {
	var summary core.RunSummary
	err := s.db.WithContext(ctx).
		First(&summary, "job_type = ? AND scheduled_date = ?", key.JobType, key.ScheduledDate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListSummaries returns summaries newest business date first.
func (s *GormStorage) ListSummaries(ctx context.Context, jobType core.JobType, limit int) ([]*core.RunSummary, error) {
	q := s.db.WithContext(ctx).Model(&core.RunSummary{})
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	var out []*core.RunSummary
	err := q.Order("scheduled_date DESC, job_type ASC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
