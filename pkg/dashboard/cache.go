package dashboard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a key.
var ErrSnapshotNotFound = errors.New("dashboard: snapshot not found")

// DefaultCapacity is the number of snapshots kept per job type.
const DefaultCapacity = 64

// Reader reads snapshots.
type Reader interface {
	Snapshot(ctx context.Context, key core.RunKey) (*core.Snapshot, error)
}

// Cache keeps the latest snapshot per key in memory. Per job type it
// retains the most recent business dates up to its capacity.
type Cache struct {
	mu       sync.RWMutex
	entries  map[core.RunKey]*core.Snapshot
	capacity int
}

var (
	_ core.CacheSignaler = (*Cache)(nil)
	_ Reader             = (*Cache)(nil)
)

// NewCache returns an empty cache. capacity <= 0 means DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{entries: make(map[core.RunKey]*core.Snapshot), capacity: capacity}
}

// Warm stores s as the latest snapshot for its key.
func (c *Cache) Warm(_ context.Context, s *core.Snapshot) error {
	if s == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.Key] = s
	c.evict(s.Key.JobType)
	return nil
}

// Invalidate drops the snapshot for key.
func (c *Cache) Invalidate(_ context.Context, key core.RunKey) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Snapshot implements Reader.
func (c *Cache) Snapshot(_ context.Context, key core.RunKey) (*core.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return s, nil
}

// List returns the snapshots for jobType, newest business date first.
// An empty jobType lists every job type.
func (c *Cache) List(jobType core.JobType) []*core.Snapshot {
	c.mu.RLock()
	out := make([]*core.Snapshot, 0, len(c.entries))
	for k, s := range c.entries {
		if jobType == "" || k.JobType == jobType {
			out = append(out, s)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *core.Snapshot) int {
		if d := strings.Compare(b.Key.ScheduledDate, a.Key.ScheduledDate); d != 0 {
			return d
		}
		return strings.Compare(string(a.Key.JobType), string(b.Key.JobType))
	})
	return out
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evict drops the oldest dates of jobType beyond capacity. Caller holds mu.
func (c *Cache) evict(jobType core.JobType) {
	var dates []string
	for k := range c.entries {
		if k.JobType == jobType {
			dates = append(dates, k.ScheduledDate)
		}
	}
	if len(dates) <= c.capacity {
		return
	}
	slices.Sort(dates)
	for _, d := range dates[:len(dates)-c.capacity] {
		delete(c.entries, core.RunKey{JobType: jobType, ScheduledDate: d})
	}
}

// Multi fans a signal out to several signalers. Every signaler is tried;
// the errors are joined.
type Multi []core.CacheSignaler

var _ core.CacheSignaler = Multi(nil)

// Warm implements core.CacheSignaler.
func (m Multi) Warm(ctx context.Context, s *core.Snapshot) error {
	var errs []error
	for _, sig := range m {
		if err := sig.Warm(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate implements core.CacheSignaler.
func (m Multi) Invalidate(ctx context.Context, key core.RunKey) error {
	var errs []error
	for _, sig := range m {
		if err := sig.Invalidate(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
