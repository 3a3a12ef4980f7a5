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

// QuotaConfig holds configuration for the quota collector.
type QuotaConfig struct {
	PollInterval time.Duration
	TextfileDir  string
}

// QuotaCollector polls mmrepquota for every file system, reporting
// user, group and fileset quotas in one pass per fs.
type QuotaCollector struct {
	config QuotaConfig
	run    gpfs.Runner
	pool   *WorkerPool
	cache  *cache.Cache
	store  *store.Store
}

// NewQuotaCollector creates a quota collector.
func NewQuotaCollector(cfg QuotaConfig, run gpfs.Runner, pool *WorkerPool, c *cache.Cache, s *store.Store) *QuotaCollector {
	return &QuotaCollector{config: cfg, run: run, pool: pool, cache: c, store: s}
}

func (q *QuotaCollector) Name() string            { return "gpfs:quota" }
func (q *QuotaCollector) Interval() time.Duration { return q.config.PollInterval }

// Collect fans out mmrepquota per file system and publishes the entries
// to cache, store and textfile.
func (q *QuotaCollector) Collect(ctx context.Context) error {
	names, rep, err := gpfs.FilesystemNames(ctx, q.run)
	if err != nil {
		return fmt.Errorf("listing file systems: %w", err)
	}
	reportDecodeErrors("mmlsfs", rep)

	var wg sync.WaitGroup
	var mu sync.Mutex
	quotas := make(map[string][]gpfs.QuotaEntry, len(names))

	for _, fs := range names {
		wg.Add(1)
		if err := q.pool.Submit(ctx, func() {
			defer wg.Done()

			entries, rep, err := gpfs.Quotas(ctx, q.run, fs)
			if err != nil {
				slog.Error("collecting quotas", "fs", fs, "error", err)
				return
			}
			reportDecodeErrors("mmrepquota "+fs, rep)
			mu.Lock()
			quotas[fs] = entries
			mu.Unlock()
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submitting quota collection for %s: %w", fs, err)
		}
	}
	wg.Wait()

	for fs, entries := range quotas {
		q.cache.UpdateQuotas(fs, entries)
	}

	now := time.Now()
	ts := now.Unix()
	for _, entries := range quotas {
		for _, e := range entries {
			if err := q.store.InsertQuotaSnapshot(ts, e); err != nil {
				slog.Error("storing quota snapshot", "fs", e.Filesystem, "name", e.Name, "error", err)
			}
		}
	}

	writeTextfile(q.config.TextfileDir, "gpfs_quota", func(reg *prometheus.Registry) {
		prom.AddQuotas(reg, cachedQuotas(q.cache))
	})

	q.cache.SetLastPoll(q.Name(), now)
	slog.Debug("quota collection complete", "filesystems", len(quotas))
	return nil
}

func cachedQuotas(c *cache.Cache) []gpfs.QuotaEntry {
	snap := c.Snapshot()
	var entries []gpfs.QuotaEntry
	keys := make([]string, 0, len(snap.Quotas))
	for fs := range snap.Quotas {
		keys = append(keys, fs)
	}
	slices.Sort(keys)
	for _, fs := range keys {
		entries = append(entries, snap.Quotas[fs]...)
	}
	return entries
}
