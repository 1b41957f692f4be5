package core

import (
	"context"
	"time"
)

// RunFilter narrows ListRuns.
type RunFilter struct {
	JobType       JobType
	ScheduledDate string
	Status        RunStatus
	Limit         int
}

// RunStore defines the persistence layer for runs.
type RunStore interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Run lifecycle
	CreateRun(ctx context.Context, run *Run) error
	StartStage(ctx context.Context, stage *Stage) error
	EndStage(ctx context.Context, runID string, name StageName, status StageStatus, errs []string, endedAt time.Time) error
	CompleteRun(ctx context.Context, runID string, status RunStatus, warnings, errs []string, completedAt time.Time) error

	// Queries
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	GetSummary(ctx context.Context, key RunKey) (*RunSummary, error)
	ListSummaries(ctx context.Context, jobType JobType, limit int) ([]*RunSummary, error)
}
