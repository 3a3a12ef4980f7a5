package poolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/sysblock"
)

// Config configures a Cache. Zero fields take the defaults noted.
type Config struct {
	Runner      gpfs.Runner
	Sys         sysblock.Reader
	DeviceCache string        // DefaultDeviceCache
	Interval    time.Duration // 2s
	StaleAfter  int           // 5 consecutive failures
}

// Cache owns the current pool I/O snapshot and refreshes it. The
// refresh loop is the only writer; any number of readers call Current
// concurrently without blocking it.
type Cache struct {
	run         gpfs.Runner
	sys         sysblock.Reader
	deviceCache string
	interval    time.Duration
	staleAfter  int

	current atomic.Pointer[Snapshot]

	mu       sync.Mutex // serializes refreshes
	prev     sample
	failures int
}

// NewCache creates a cache that publishes an empty snapshot until the
// first refresh succeeds.
func NewCache(cfg Config) *Cache {
	if cfg.DeviceCache == "" {
		cfg.DeviceCache = DefaultDeviceCache
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5
	}

	c := &Cache{
		run:         cfg.Runner,
		sys:         cfg.Sys,
		deviceCache: cfg.DeviceCache,
		interval:    cfg.Interval,
		staleAfter:  cfg.StaleAfter,
	}
	c.current.Store(&Snapshot{})

	return c
}

// Current returns the last fully committed snapshot. It never blocks on
// a refresh in progress and never returns nil.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// RefreshNow performs one refresh outside the periodic schedule. On
// success the new snapshot is published atomically; on failure the
// previous snapshot stays current and the failure counts toward the
// stale threshold.
func (c *Cache) RefreshNow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, next, err := c.collect(ctx)
	if err != nil {
		c.failures++
		if c.failures >= c.staleAfter {
			c.markStale()
		}
		return err
	}

	c.failures = 0
	c.prev = next
	c.current.Store(snap)

	return nil
}

func (c *Cache) collect(ctx context.Context) (*Snapshot, sample, error) {
	topo, err := ResolveTopology(ctx, c.run, c.deviceCache, false)
	if err != nil {
		return nil, sample{}, err
	}

	stats, err := c.sys.StatDevices(topo.Devices())
	if err != nil {
		return nil, sample{}, fmt.Errorf("sampling block devices: %w", err)
	}
	now := time.Now()

	groups, next := advance(topo, stats, c.prev, now)

	return &Snapshot{
		Groups:     groups,
		Unassigned: topo.Unassigned,
		Taken:      now,
	}, next, nil
}

// markStale republishes the current snapshot with the stale flag set.
// Caller holds mu.
func (c *Cache) markStale() {
	cur := c.current.Load()
	if cur.Stale {
		return
	}

	stale := *cur
	stale.Stale = true
	c.current.Store(&stale)

	slog.Warn("pool I/O snapshot marked stale",
		"failures", c.failures,
		"taken", cur.Taken)
}

// Run refreshes the cache on its interval until ctx is cancelled. A
// failed refresh is logged and the loop keeps going; only cancellation
// ends it.
func (c *Cache) Run(ctx context.Context) error {
	slog.Info("pool I/O refresher started", "interval", c.interval)

	c.cycle(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pool I/O refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

func (c *Cache) cycle(ctx context.Context) {
	if err := c.RefreshNow(ctx); err != nil {
		slog.Error("pool I/O refresh failed", "error", err)
	}
}
