// Package core provides the fundamental types and interfaces for the runs package.
//
// This package contains:
//   - Run, Stage and RunSummary data models with GORM annotations
//   - JobType, TriggerSource and status enumerations
//   - JobResult and Signal, the domain output handed to the validator
//   - RunStore interface defining the persistence contract
//   - Event types for run monitoring
//   - Error types for resolution, tracking and execution
//
// Most users should import the root package github.com/jdziat/simple-report-runs
// instead of this package directly.
package core
