package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fsops/gpfsmon/internal/cache"
	"github.com/fsops/gpfsmon/internal/poolio"
	"github.com/fsops/gpfsmon/internal/prom"
	"github.com/fsops/gpfsmon/internal/store"
)

// PoolIOSource provides the latest pool throughput snapshot.
type PoolIOSource interface {
	Current() *poolio.Snapshot
}

// PoolIOConfig holds configuration for the pool throughput exporter.
type PoolIOConfig struct {
	PollInterval time.Duration
	TextfileDir  string
}

// PoolIOCollector publishes the aggregator's latest snapshot: the
// gpfs_pool textfile plus history rows. The aggregator refreshes every
// couple of seconds; this collector samples it at its own interval so
// the history table stays bounded.
type PoolIOCollector struct {
	config PoolIOConfig
	source PoolIOSource
	cache  *cache.Cache
	store  *store.Store
}

// NewPoolIOCollector creates a pool throughput exporter.
func NewPoolIOCollector(cfg PoolIOConfig, src PoolIOSource, c *cache.Cache, s *store.Store) *PoolIOCollector {
	return &PoolIOCollector{config: cfg, source: src, cache: c, store: s}
}

func (p *PoolIOCollector) Name() string            { return "gpfs:poolio" }
func (p *PoolIOCollector) Interval() time.Duration { return p.config.PollInterval }

// Collect renders the latest snapshot. A stale snapshot is still
// exported (with the stale gauge raised) but not recorded as history.
func (p *PoolIOCollector) Collect(_ context.Context) error {
	snap := p.source.Current()
	if snap == nil || snap.Taken.IsZero() {
		slog.Debug("no pool throughput snapshot yet")
		return nil
	}

	writeTextfile(p.config.TextfileDir, "gpfs_pool", func(reg *prometheus.Registry) {
		prom.AddPoolIO(reg, snap)
	})

	if snap.Stale {
		slog.Warn("pool throughput snapshot is stale", "taken", snap.Taken)
		return nil
	}

	// History rows are keyed by the snapshot's own timestamp, so
	// sampling one snapshot twice replaces instead of duplicating.
	ts := snap.Taken.Unix()
	for _, g := range snap.Groups {
		if err := p.store.InsertPoolIOSnapshot(ts, g); err != nil {
			slog.Error("storing poolio snapshot", "fs", g.Filesystem, "pool", g.Pool, "error", err)
		}
	}

	p.cache.SetLastPoll(p.Name(), time.Now())
	slog.Debug("poolio export complete", "groups", len(snap.Groups))
	return nil
}
