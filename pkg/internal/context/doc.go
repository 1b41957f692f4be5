// Package context provides internal context helpers for run execution.
//
// This package is internal and should not be imported directly.
// It provides context value types for:
//   - Run context: identity of the run an executor is working for
//   - Stage lookup: the stage currently open on that run
package context
