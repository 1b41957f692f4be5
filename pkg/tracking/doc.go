// Package tracking records runs and their stages.
//
// Tracking is best-effort: a Tracker swallows and logs store failures, and a
// nil *RunHandle means tracking is disabled for that run. A Recorder is the
// per-run stage tracker executors write to; it always keeps the run in
// memory so the caller gets a complete record even when nothing was stored.
package tracking
