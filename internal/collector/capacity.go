package collector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fsops/gpfsmon/internal/cache"
	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/prom"
	"github.com/fsops/gpfsmon/internal/store"
)

// CapacityConfig holds configuration for the capacity collector.
type CapacityConfig struct {
	PollInterval time.Duration
	TextfileDir  string
}

// CapacityCollector polls mmdf and mmlsdisk for every file system in
// the cluster. It owns file system retention: per-fs cache entries of
// file systems that left the mmlsfs listing are dropped here.
type CapacityCollector struct {
	config CapacityConfig
	run    gpfs.Runner
	pool   *WorkerPool
	cache  *cache.Cache
	store  *store.Store
}

// NewCapacityCollector creates a capacity collector.
func NewCapacityCollector(cfg CapacityConfig, run gpfs.Runner, pool *WorkerPool, c *cache.Cache, s *store.Store) *CapacityCollector {
	return &CapacityCollector{config: cfg, run: run, pool: pool, cache: c, store: s}
}

func (c *CapacityCollector) Name() string            { return "gpfs:capacity" }
func (c *CapacityCollector) Interval() time.Duration { return c.config.PollInterval }

// Collect performs a full poll cycle: list file systems, fan out mmdf
// and mmlsdisk per file system, publish to cache, store and textfile.
func (c *CapacityCollector) Collect(ctx context.Context) error {
	names, rep, err := gpfs.FilesystemNames(ctx, c.run)
	if err != nil {
		return fmt.Errorf("listing file systems: %w", err)
	}
	reportDecodeErrors("mmlsfs", rep)

	c.cache.RetainFilesystems(names)

	var wg sync.WaitGroup
	var mu sync.Mutex
	dfs := make(map[string]*gpfs.Df, len(names))
	disks := make(map[string][]gpfs.Disk, len(names))

	for _, fs := range names {
		wg.Add(1)
		if err := c.pool.Submit(ctx, func() {
			defer wg.Done()

			df, rep, err := gpfs.DfReport(ctx, c.run, fs)
			if err != nil {
				slog.Error("collecting capacity", "fs", fs, "error", err)
				return
			}
			reportDecodeErrors("mmdf "+fs, rep)
			mu.Lock()
			dfs[fs] = &df
			mu.Unlock()

			dl, rep, err := gpfs.Disks(ctx, c.run, fs)
			if err != nil {
				slog.Error("collecting disks", "fs", fs, "error", err)
				return
			}
			reportDecodeErrors("mmlsdisk "+fs, rep)
			mu.Lock()
			disks[fs] = dl
			mu.Unlock()
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submitting capacity collection for %s: %w", fs, err)
		}
	}
	wg.Wait()

	for fs, df := range dfs {
		c.cache.UpdateCapacity(fs, df)
	}
	for fs, dl := range disks {
		c.cache.UpdateDisks(fs, dl)
	}

	now := time.Now()
	ts := now.Unix()
	for fs, df := range dfs {
		if err := c.store.InsertFsSnapshot(ts, fs, df.Total); err != nil {
			slog.Error("storing fs snapshot", "fs", fs, "error", err)
		}
		for _, p := range df.Pools {
			if err := c.store.InsertPoolSnapshot(ts, fs, p); err != nil {
				slog.Error("storing pool snapshot", "fs", fs, "pool", p.Name, "error", err)
			}
		}
	}

	writeTextfile(c.config.TextfileDir, "gpfs_df", func(reg *prometheus.Registry) {
		prom.AddCapacity(reg, cachedCapacity(c.cache))
	})

	c.cache.SetLastPoll(c.Name(), now)
	slog.Debug("capacity collection complete", "filesystems", len(dfs))
	return nil
}

// cachedCapacity flattens the cached per-fs reports. Rendering from the
// cache keeps the last good report of a file system whose poll failed
// this cycle in the exported series.
func cachedCapacity(c *cache.Cache) []gpfs.Df {
	snap := c.Snapshot()
	dfs := make([]gpfs.Df, 0, len(snap.Capacity))
	keys := make([]string, 0, len(snap.Capacity))
	for fs := range snap.Capacity {
		keys = append(keys, fs)
	}
	slices.Sort(keys)
	for _, fs := range keys {
		dfs = append(dfs, *snap.Capacity[fs])
	}
	return dfs
}
