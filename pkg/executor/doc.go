// Package executor runs the work of each job type as an ordered list of
// tracked stages.
//
// A Pipeline is the shared skeleton: it opens each declared stage, runs the
// step, and closes the stage as success or failed before any error leaves
// Run. Steps with more than one viable strategy go through the fallback
// package. Unit-level degradation is recorded as warnings and in the
// result's GenerationMeta; only unrecoverable collaborator failures are
// returned as errors.
package executor
