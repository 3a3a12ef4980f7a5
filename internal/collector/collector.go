// Package collector provides the polling framework of the daemon: a
// shared worker pool bounding concurrent mm command invocations, a Run
// loop driving each collector at its own interval, and the collectors
// that publish polled state to the cache, the history store and the
// node_exporter textfiles.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/prom"
)

// Collector is the interface for all pollers.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
	Interval() time.Duration
}

// WorkerPool bounds concurrent mm command invocations across all
// collectors. The administrative commands take cluster-wide locks;
// running too many at once slows every node down.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a worker pool with the given max concurrent workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Submit runs fn in the pool, blocking if all workers are busy.
// Returns ctx.Err() if context is cancelled while waiting.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		go func() {
			defer func() { <-p.sem }()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts a collector loop that calls Collect at the configured interval.
// It blocks until the context is cancelled.
func Run(ctx context.Context, c Collector) error {
	name := c.Name()
	interval := c.Interval()
	slog.Info("collector started", "name", name, "interval", interval)

	// Collect immediately on startup
	if err := c.Collect(ctx); err != nil {
		slog.Error("collection failed", "collector", name, "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped", "name", name)
			return ctx.Err()
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				slog.Error("collection failed", "collector", name, "error", err)
			}
		}
	}
}

// reportDecodeErrors logs rows a poll could not decode. Partial decode
// failures degrade the poll, they do not abort it.
func reportDecodeErrors(source string, rep *gpfs.Report) {
	if err := rep.Err(); err != nil {
		slog.Warn("rows failed to decode", "source", source, "error", err)
	}
}

// writeTextfile renders one metric family set on a fresh registry and
// publishes it under dir. An empty dir disables textfile export.
func writeTextfile(dir, name string, fill func(*prometheus.Registry)) {
	if dir == "" {
		return
	}
	reg := prometheus.NewRegistry()
	fill(reg)
	if err := prom.WriteFile(dir, name, reg); err != nil {
		slog.Error("writing textfile", "file", name, "error", err)
	}
}
