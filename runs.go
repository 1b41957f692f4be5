// Package runs orchestrates the scheduled jobs of a stock report pipeline
// and tracks every run stage by stage.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("reports.db"), &gorm.Config{})
//	store := runs.NewGormStorage(db)
//	store.Migrate(context.Background())
//
//	resolver, _ := runs.NewResolver(runs.WithLocation(loc))
//	registry := runs.Standard(runs.ExecutorConfig{Market: market, Primary: model})
//	o := runs.New(resolver, registry, runs.NewTracker(store))
//
//	// Manual run
//	report, err := o.Trigger(ctx, runs.Invocation{Override: "end-of-day"})
//
//	// Scheduled runs
//	worker := runs.NewWorker(o)
//	worker.Start(ctx)
package runs

import (
	"gorm.io/gorm"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/executor"
	"github.com/jdziat/simple-report-runs/pkg/jobctx"
	"github.com/jdziat/simple-report-runs/pkg/orchestrator"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/storage"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
	"github.com/jdziat/simple-report-runs/pkg/worker"
)

type (
	// JobType is one of the five report jobs.
	JobType = core.JobType

	// TriggerSource records what started a run.
	TriggerSource = core.TriggerSource

	// Run is one execution attempt of one job type for one business date.
	Run = core.Run

	// Stage is one named phase within a run.
	Stage = core.Stage

	// RunStatus represents the state of a run.
	RunStatus = core.RunStatus

	// StageStatus represents the state of a stage.
	StageStatus = core.StageStatus

	// StageName names a phase of a run.
	StageName = core.StageName

	// RunKey is the idempotency key of a run.
	RunKey = core.RunKey

	// RunSummary is the latest outcome per RunKey.
	RunSummary = core.RunSummary

	// RunFilter narrows ListRuns.
	RunFilter = core.RunFilter

	// RunStore defines the persistence layer for runs.
	RunStore = core.RunStore

	// JobResult is what an executor hands back.
	JobResult = core.JobResult

	// Signal is one per-unit output of an analysis.
	Signal = core.Signal

	// Direction is the stance a signal takes on a unit.
	Direction = core.Direction

	// Event is the interface for all orchestrator events.
	Event = core.Event

	// Alert describes a failed run.
	Alert = core.Alert

	// Alerter receives failed-run alerts.
	Alerter = core.Alerter

	// Snapshot is the dashboard view of a finished run.
	Snapshot = core.Snapshot

	// CacheSignaler warms or invalidates dashboard caches.
	CacheSignaler = core.CacheSignaler

	// Orchestrator resolves triggers and executes runs.
	Orchestrator = orchestrator.Orchestrator

	// Option configures an Orchestrator.
	Option = orchestrator.Option

	// Invocation is one trigger.
	Invocation = orchestrator.Invocation

	// Report is the terminal outcome of a triggered run.
	Report = orchestrator.Report

	// Policy holds per job type overrides.
	Policy = orchestrator.Policy

	// Resolver maps wall-clock instants to job types.
	Resolver = schedule.Resolver

	// Window is one row of the trigger table.
	Window = schedule.Window

	// Resolution is a resolved trigger.
	Resolution = schedule.Resolution

	// Tracker writes run records.
	Tracker = tracking.Tracker

	// Recorder tracks the stages of one run.
	Recorder = tracking.Recorder

	// Executor runs one job type.
	Executor = executor.Executor

	// ExecutorConfig wires collaborators into the standard executors.
	ExecutorConfig = executor.Config

	// Registry maps job types to executors.
	Registry = executor.Registry

	// Worker fires scheduled windows.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// GormStorage implements RunStore using GORM.
	GormStorage = storage.GormStorage
)

// Job types
const (
	JobPreMarket    = core.JobPreMarket
	JobIntraday     = core.JobIntraday
	JobEndOfDay     = core.JobEndOfDay
	JobWeeklyReview = core.JobWeeklyReview
	JobSideRefresh  = core.JobSideRefresh
)

// Run status constants
const (
	StatusRunning = core.RunRunning
	StatusSuccess = core.RunSuccess
	StatusPartial = core.RunPartial
	StatusFailed  = core.RunFailed
)

// Trigger sources
const (
	SourceScheduled = core.SourceScheduled
	SourceManual    = core.SourceManual
)

// Error variables
var (
	ErrUnrecognizedSchedule = core.ErrUnrecognizedSchedule
	ErrUnknownJobType       = core.ErrUnknownJobType
	ErrInvalidScheduledDate = core.ErrInvalidScheduledDate
	ErrRunNotFound          = core.ErrRunNotFound
	ErrTrackingUnavailable  = core.ErrTrackingUnavailable
	ErrRunDeadline          = core.ErrRunDeadline
	ErrResultRejected       = core.ErrResultRejected
)

// New creates an Orchestrator.
func New(resolver *Resolver, registry *Registry, tracker *Tracker, opts ...Option) *Orchestrator {
	return orchestrator.New(resolver, registry, tracker, opts...)
}

// NewResolver compiles the trigger table.
func NewResolver(opts ...schedule.Option) (*Resolver, error) {
	return schedule.NewResolver(opts...)
}

// NewTracker wraps store. A nil store gives a tracker that records nothing.
func NewTracker(store RunStore, opts ...tracking.Option) *Tracker {
	return tracking.New(store, opts...)
}

// NewGormStorage creates a GORM-backed run store.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// Standard returns a registry with an executor for every job type.
func Standard(cfg ExecutorConfig) *Registry {
	return executor.Standard(cfg)
}

// NewWorker creates a worker that fires o's trigger table.
func NewWorker(o *Orchestrator, opts ...WorkerOption) *Worker {
	return worker.NewWorker(o, o.Resolver(), opts...)
}

// JobTypes returns the closed set of job types.
func JobTypes() []JobType {
	return core.JobTypes()
}

// ParseJobType validates s against the closed set.
func ParseJobType(s string) (JobType, error) {
	return core.ParseJobType(s)
}

// Orchestrator options
var (
	WithLogger        = orchestrator.WithLogger
	WithRunDeadline   = orchestrator.WithRunDeadline
	WithPolicy        = orchestrator.WithPolicy
	RequireTracking   = orchestrator.RequireTracking
	WithCache         = orchestrator.WithCache
	WithAlerter       = orchestrator.WithAlerter
	WithSignalTimeout = orchestrator.WithSignalTimeout
)

// WithLocation sets the home timezone of a Resolver.
var WithLocation = schedule.WithLocation

// RunIDFromContext returns the run ID inside an executor, or "".
var RunIDFromContext = jobctx.RunIDFromContext
