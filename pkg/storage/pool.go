package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the connection pool behind the run store.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PoolConfigFor returns the pool sizing for a driver. Postgres gets room for
// a handful of concurrent runs issuing short tracking writes. SQLite gets a
// single connection: it has one writer, and every connection to ":memory:"
// is a separate database.
func PoolConfigFor(driver string) PoolConfig {
	if driver == DriverPostgres {
		return PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
		}
	}
	return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
}

// PoolOption adjusts the pool configuration.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// WithPoolConfig replaces the whole configuration.
func WithPoolConfig(cfg PoolConfig) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		*c = cfg
	})
}

// WithMaxOpenConns overrides the connection cap. Values below 1 keep the
// driver default.
func WithMaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		if n > 0 {
			c.MaxOpenConns = n
		}
	})
}

// ConfigurePool sizes db's pool for its dialect, then applies opts. Idle
// connections never exceed MaxOpenConns.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	cfg := PoolConfigFor(db.Dialector.Name())
	for _, opt := range opts {
		opt.applyPool(&cfg)
	}
	if cfg.MaxOpenConns < 1 {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("storage: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}
