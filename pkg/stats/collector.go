package stats

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// EventSource is the part of the orchestrator the collector listens to.
type EventSource interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// RunLister reads open runs for the running snapshot.
type RunLister interface {
	ListRuns(ctx context.Context, filter core.RunFilter) ([]*core.Run, error)
}

// Collector subscribes to run events and periodically flushes counters.
type Collector struct {
	source    EventSource
	stats     Storage
	runs      RunLister
	bucket    time.Duration
	interval  time.Duration
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	counters map[core.JobType]*Counters

	// ready is closed once the collector has subscribed to events.
	ready     chan struct{}
	readyOnce sync.Once
}

// CollectorOption configures the Collector.
type CollectorOption interface {
	apply(*Collector)
}

type collectorOptionFunc func(*Collector)

func (f collectorOptionFunc) apply(c *Collector) { f(c) }

// WithRetention sets how long stats rows are kept. Zero keeps them forever.
func WithRetention(d time.Duration) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		c.retention = d
	})
}

// WithBucket sets the bucket width. Default one hour.
func WithBucket(d time.Duration) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if d > 0 {
			c.bucket = d
		}
	})
}

// WithFlushInterval sets how often counters are written. Default one minute.
func WithFlushInterval(d time.Duration) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	})
}

// WithRunLister enables the running snapshot.
func WithRunLister(r RunLister) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		c.runs = r
	})
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		c.log = log.With().Str("component", "stats").Logger()
	})
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if now != nil {
			c.now = now
		}
	})
}

// NewCollector creates a new Collector.
func NewCollector(source EventSource, stats Storage, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:    source,
		stats:     stats,
		bucket:    time.Hour,
		interval:  time.Minute,
		retention: 30 * 24 * time.Hour,
		log:       zerolog.Nop(),
		now:       time.Now,
		counters:  make(map[core.JobType]*Counters),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Start listens for events and flushes on a ticker. Blocks until ctx is
// cancelled, then flushes once more.
func (c *Collector) Start(ctx context.Context) {
	events := c.source.Events()
	defer c.source.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		case e := <-events:
			c.Handle(e)
		case <-ticker.C:
			c.Flush(ctx)
			c.snapshot(ctx)
			c.prune(ctx)
		}
	}
}

// Handle counts one event.
func (c *Collector) Handle(e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case *core.RunStarted:
		c.get(ev.Run.JobType).Started++
	case *core.RunCompleted:
		cnt := c.get(ev.Run.JobType)
		cnt.DurationMs += ev.Duration.Milliseconds()
		switch ev.Run.Status {
		case core.RunSuccess:
			cnt.Success++
		case core.RunPartial:
			cnt.Partial++
		case core.RunFailed:
			cnt.Failed++
		}
	case *core.TriggerRejected:
		c.get("").Rejected++
	}
}

func (c *Collector) get(jobType core.JobType) *Counters {
	cnt, ok := c.counters[jobType]
	if !ok {
		cnt = &Counters{}
		c.counters[jobType] = cnt
	}
	return cnt
}

func (c *Collector) bucketOf(t time.Time) time.Time {
	return t.UTC().Truncate(c.bucket)
}

// Flush writes accumulated counters to storage. Counters that fail to
// write are dropped and logged.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.counters
	c.counters = make(map[core.JobType]*Counters)
	c.mu.Unlock()

	bucket := c.bucketOf(c.now())
	for jt, cnt := range batch {
		if cnt.empty() {
			continue
		}
		if err := c.stats.AddCounters(ctx, jt, bucket, *cnt); err != nil {
			c.log.Warn().Err(err).Str("job_type", string(jt)).Msg("stats flush failed")
		}
	}
}

func (c *Collector) snapshot(ctx context.Context) {
	if c.runs == nil {
		return
	}
	open, err := c.runs.ListRuns(ctx, core.RunFilter{Status: core.RunRunning, Limit: 1000})
	if err != nil {
		c.log.Warn().Err(err).Msg("stats snapshot failed")
		return
	}
	running := make(map[core.JobType]int64)
	for _, jt := range core.JobTypes() {
		running[jt] = 0
	}
	for _, r := range open {
		running[r.JobType]++
	}
	bucket := c.bucketOf(c.now())
	for jt, n := range running {
		if err := c.stats.SnapshotRunning(ctx, jt, bucket, n); err != nil {
			c.log.Warn().Err(err).Str("job_type", string(jt)).Msg("stats snapshot failed")
		}
	}
}

func (c *Collector) prune(ctx context.Context) {
	if c.retention <= 0 {
		return
	}
	if _, err := c.stats.Prune(ctx, c.now().Add(-c.retention)); err != nil {
		c.log.Warn().Err(err).Msg("stats prune failed")
	}
}
