// Package storage provides storage implementations for run persistence.
//
// This package includes:
//   - GormStorage: a GORM-based RunStore supporting SQLite and PostgreSQL
//   - Pool configuration helpers for the underlying *sql.DB
//
// The RunStore interface is defined in pkg/core and must be implemented
// by any custom storage backend.
//
// Most users should import the root package github.com/jdziat/simple-report-runs
// which provides NewGormStorage() to create storage instances.
package storage
