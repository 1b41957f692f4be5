// Package stats aggregates run outcomes per job type into time buckets.
//
// A Collector subscribes to orchestrator events, counts outcomes in memory,
// and flushes them to a Storage on a ticker. It also snapshots how many
// runs are still open, read from the run store.
package stats
