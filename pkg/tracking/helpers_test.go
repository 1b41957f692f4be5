package tracking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/storage"
)

var errStoreDown = errors.New("connection refused")

// newSQLiteStore returns a migrated in-memory store.
func newSQLiteStore(t *testing.T) *storage.GormStorage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, storage.ConfigurePool(db))
	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// downStore fails every write and counts the attempts.
type downStore struct {
	core.RunStore
	calls atomic.Int32
}

func (d *downStore) CreateRun(context.Context, *core.Run) error {
	d.calls.Add(1)
	return errStoreDown
}

func (d *downStore) StartStage(context.Context, *core.Stage) error {
	d.calls.Add(1)
	return errStoreDown
}

func (d *downStore) EndStage(context.Context, string, core.StageName, core.StageStatus, []string, time.Time) error {
	d.calls.Add(1)
	return errStoreDown
}

func (d *downStore) CompleteRun(context.Context, string, core.RunStatus, []string, []string, time.Time) error {
	d.calls.Add(1)
	return errStoreDown
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newRun() *core.Run {
	return &core.Run{
		JobType:       core.JobPreMarket,
		ScheduledDate: "2024-01-02",
		TriggerSource: core.SourceScheduled,
		Window:        "pre-market",
	}
}

var allStages = []core.StageName{core.StageInit, core.StageDataFetch, core.StageAIAnalysis, core.StageStorage}
