package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig defines how long to keep data in each table.
type RetentionConfig struct {
	FsSnapshots     time.Duration // default 30d
	PoolSnapshots   time.Duration // default 30d
	QuotaSnapshots  time.Duration // default 30d
	PoolIOSnapshots time.Duration // default 48h
	AlertLog        time.Duration // default 30d
}

// DefaultRetention returns the default retention periods. Capacity and
// quota trends are kept for a month; pool throughput is sampled far more
// often and kept for two days.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		FsSnapshots:     30 * 24 * time.Hour,
		PoolSnapshots:   30 * 24 * time.Hour,
		QuotaSnapshots:  30 * 24 * time.Hour,
		PoolIOSnapshots: 48 * time.Hour,
		AlertLog:        30 * 24 * time.Hour,
	}
}

// Pruner periodically removes old data from the store.
type Pruner struct {
	store     *Store
	retention RetentionConfig
	interval  time.Duration
}

// NewPruner creates a pruner with the given retention config.
func NewPruner(store *Store, retention RetentionConfig) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  1 * time.Hour,
	}
}

// Run starts the pruner loop. It blocks until the context is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	slog.Info("pruner started", "interval", p.interval)

	// Run once at startup
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pruner stopped")
			return ctx.Err()
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() {
	now := time.Now().Unix()
	tables := []struct {
		name      string
		retention time.Duration
	}{
		{"fs_snapshots", p.retention.FsSnapshots},
		{"pool_snapshots", p.retention.PoolSnapshots},
		{"quota_snapshots", p.retention.QuotaSnapshots},
		{"poolio_snapshots", p.retention.PoolIOSnapshots},
		{"alert_log", p.retention.AlertLog},
	}

	for _, t := range tables {
		cutoff := now - int64(t.retention.Seconds())
		result, err := p.store.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE ts < ?", t.name), cutoff)
		if err != nil {
			slog.Error("pruning failed", "table", t.name, "error", err)
			continue
		}
		rows, _ := result.RowsAffected()
		if rows > 0 {
			slog.Info("pruned old data", "table", t.name, "rows", rows)
		}
	}
}
