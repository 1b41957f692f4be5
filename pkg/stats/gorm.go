package stats

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

type gormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a GORM-backed stats storage.
func NewGormStorage(db *gorm.DB) Storage {
	return &gormStorage{db: db}
}

func (s *gormStorage) MigrateStats(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&RunStat{})
}

// bucketRow returns the row for jobType at bucket, creating it if needed.
func (s *gormStorage) bucketRow(tx *gorm.DB, jobType core.JobType, bucket time.Time) (*RunStat, error) {
	var row RunStat
	err := tx.Where("job_type = ? AND timestamp = ?", jobType, bucket).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = RunStat{JobType: jobType, Timestamp: bucket}
		return &row, tx.Create(&row).Error
	}
	return &row, err
}

func (s *gormStorage) AddCounters(ctx context.Context, jobType core.JobType, bucket time.Time, c Counters) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.bucketRow(tx, jobType, bucket)
		if err != nil {
			return err
		}
		return tx.Model(row).Updates(map[string]any{
			"started":     gorm.Expr("started + ?", c.Started),
			"success":     gorm.Expr("success + ?", c.Success),
			"partial":     gorm.Expr("partial + ?", c.Partial),
			"failed":      gorm.Expr("failed + ?", c.Failed),
			"rejected":    gorm.Expr("rejected + ?", c.Rejected),
			"duration_ms": gorm.Expr("duration_ms + ?", c.DurationMs),
		}).Error
	})
}

func (s *gormStorage) SnapshotRunning(ctx context.Context, jobType core.JobType, bucket time.Time, running int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.bucketRow(tx, jobType, bucket)
		if err != nil {
			return err
		}
		return tx.Model(row).Update("running", running).Error
	})
}

func (s *gormStorage) History(ctx context.Context, jobType core.JobType, since, until time.Time) ([]RunStat, error) {
	var out []RunStat
	q := s.db.WithContext(ctx).Order("timestamp ASC, job_type ASC")

	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	if !until.IsZero() {
		q = q.Where("timestamp <= ?", until)
	}

	return out, q.Find(&out).Error
}

func (s *gormStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&RunStat{})
	return result.RowsAffected, result.Error
}
