// Package dashboard holds the read side that dashboards consume: the latest
// snapshot per (job type, business date), kept in memory and optionally
// published to S3 as msgpack objects.
//
// The orchestrator warms snapshots after success or partial runs and
// invalidates them after failed runs. Both are signals only; a dashboard
// that misses one is stale, never wrong about the run store.
package dashboard
