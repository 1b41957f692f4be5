package core

import (
	"context"
	"time"
)

// Alert is the failure notice sent when a run ends failed.
type Alert struct {
	RunID         string    `json:"run_id"`
	JobType       JobType   `json:"job_type"`
	ScheduledDate string    `json:"scheduled_date"`
	TriggerSource string    `json:"trigger_source"`
	Summary       string    `json:"error_summary"`
	Timestamp     time.Time `json:"timestamp"`
}

// Alerter delivers failure notices. Delivery is best-effort.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// Snapshot is the dashboard view of a finished run.
type Snapshot struct {
	Key           RunKey        `json:"key" msgpack:"key"`
	RunID         string        `json:"run_id" msgpack:"run_id"`
	Status        RunStatus     `json:"status" msgpack:"status"`
	TriggerSource TriggerSource `json:"trigger_source" msgpack:"trigger_source"`
	Warnings      []string      `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
	Errors        []string      `json:"errors,omitempty" msgpack:"errors,omitempty"`
	Result        *JobResult    `json:"result,omitempty" msgpack:"result,omitempty"`
	CompletedAt   time.Time     `json:"completed_at" msgpack:"completed_at"`
}

// CacheSignaler is the cache/dashboard layer. Warm is sent after success
// or partial runs, Invalidate after failed ones.
type CacheSignaler interface {
	Warm(ctx context.Context, snap *Snapshot) error
	Invalidate(ctx context.Context, key RunKey) error
}
