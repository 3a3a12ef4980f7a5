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
)

// FilesetConfig holds configuration for the fileset collector.
type FilesetConfig struct {
	PollInterval time.Duration
	TextfileDir  string
}

// FilesetCollector polls mmlsfileset for every file system. Fileset
// inode headroom moves slowly, so its interval is typically the longest
// of all collectors.
type FilesetCollector struct {
	config FilesetConfig
	run    gpfs.Runner
	pool   *WorkerPool
	cache  *cache.Cache
}

// NewFilesetCollector creates a fileset collector.
func NewFilesetCollector(cfg FilesetConfig, run gpfs.Runner, pool *WorkerPool, c *cache.Cache) *FilesetCollector {
	return &FilesetCollector{config: cfg, run: run, pool: pool, cache: c}
}

func (f *FilesetCollector) Name() string            { return "gpfs:fileset" }
func (f *FilesetCollector) Interval() time.Duration { return f.config.PollInterval }

// Collect fans out mmlsfileset per file system and publishes the
// filesets to cache and textfile.
func (f *FilesetCollector) Collect(ctx context.Context) error {
	names, rep, err := gpfs.FilesystemNames(ctx, f.run)
	if err != nil {
		return fmt.Errorf("listing file systems: %w", err)
	}
	reportDecodeErrors("mmlsfs", rep)

	var wg sync.WaitGroup
	var mu sync.Mutex
	filesets := make(map[string][]gpfs.Fileset, len(names))

	for _, fs := range names {
		wg.Add(1)
		if err := f.pool.Submit(ctx, func() {
			defer wg.Done()

			fsets, rep, err := gpfs.Filesets(ctx, f.run, fs)
			if err != nil {
				slog.Error("collecting filesets", "fs", fs, "error", err)
				return
			}
			reportDecodeErrors("mmlsfileset "+fs, rep)
			mu.Lock()
			filesets[fs] = fsets
			mu.Unlock()
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submitting fileset collection for %s: %w", fs, err)
		}
	}
	wg.Wait()

	for fs, fsets := range filesets {
		f.cache.UpdateFilesets(fs, fsets)
	}

	writeTextfile(f.config.TextfileDir, "gpfs_fileset", func(reg *prometheus.Registry) {
		prom.AddFilesets(reg, cachedFilesets(f.cache))
	})

	f.cache.SetLastPoll(f.Name(), time.Now())
	slog.Debug("fileset collection complete", "filesystems", len(filesets))
	return nil
}

func cachedFilesets(c *cache.Cache) []gpfs.Fileset {
	snap := c.Snapshot()
	var filesets []gpfs.Fileset
	keys := make([]string, 0, len(snap.Filesets))
	for fs := range snap.Filesets {
		keys = append(keys, fs)
	}
	slices.Sort(keys)
	for _, fs := range keys {
		filesets = append(filesets, snap.Filesets[fs]...)
	}
	return filesets
}
