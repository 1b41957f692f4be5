// Package worker provides the Worker that drives the trigger table.
//
// The worker is the time source: it sleeps until the next window fires,
// hands the fire instant to the orchestrator, and keeps going. Each run
// executes in its own goroutine, bounded by a concurrency limit, so a slow
// end-of-day run never delays the next window.
package worker
