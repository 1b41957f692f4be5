// Package security provides validation, sanitization, and limits for the runs package.
//
// This package includes:
//   - Input validation for job type names arriving from manual triggers
//   - Error message sanitization before messages are persisted on a run
//   - Clamping functions to enforce safe limits on concurrency and message counts
//
// Most users should import the root package github.com/jdziat/simple-report-runs
// which re-exports these functions.
package security
