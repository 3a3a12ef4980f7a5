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

// StateConfig holds configuration for the cluster state collector.
type StateConfig struct {
	PollInterval time.Duration
	TextfileDir  string
}

// StateCollector polls the cluster-wide daemon states, the manager
// roles and the deadlock status. The three commands are independent;
// one failing leaves the others' results in place.
type StateCollector struct {
	config StateConfig
	run    gpfs.Runner
	pool   *WorkerPool
	cache  *cache.Cache
}

// NewStateCollector creates a cluster state collector.
func NewStateCollector(cfg StateConfig, run gpfs.Runner, pool *WorkerPool, c *cache.Cache) *StateCollector {
	return &StateCollector{config: cfg, run: run, pool: pool, cache: c}
}

func (s *StateCollector) Name() string            { return "gpfs:state" }
func (s *StateCollector) Interval() time.Duration { return s.config.PollInterval }

// Collect fans out mmgetstate, mmlsmgr and mmdiag and publishes the
// results to cache and textfile.
func (s *StateCollector) Collect(ctx context.Context) error {
	var wg sync.WaitGroup

	submit := func(name string, fn func()) error {
		wg.Add(1)
		if err := s.pool.Submit(ctx, func() {
			defer wg.Done()
			fn()
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submitting %s: %w", name, err)
		}
		return nil
	}

	// Each task writes its own result variable; wg.Wait orders the
	// writes before the reads below.
	var (
		states   []gpfs.NodeState
		statesOK bool
		managers gpfs.Managers
		mgrOK    bool
		deadlock gpfs.Deadlock
		dlOK     bool
	)

	if err := submit("mmgetstate", func() {
		st, rep, err := gpfs.States(ctx, s.run)
		if err != nil {
			slog.Error("collecting node states", "error", err)
			return
		}
		reportDecodeErrors("mmgetstate", rep)
		states, statesOK = st, true
	}); err != nil {
		return err
	}

	if err := submit("mmlsmgr", func() {
		m, rep, err := gpfs.ClusterManagers(ctx, s.run)
		if err != nil {
			slog.Error("collecting managers", "error", err)
			return
		}
		reportDecodeErrors("mmlsmgr", rep)
		managers, mgrOK = m, true
	}); err != nil {
		return err
	}

	if err := submit("mmdiag", func() {
		d, rep, err := gpfs.Deadlocks(ctx, s.run)
		if err != nil {
			slog.Error("collecting deadlock status", "error", err)
			return
		}
		reportDecodeErrors("mmdiag", rep)
		deadlock, dlOK = d, true
	}); err != nil {
		return err
	}

	wg.Wait()

	if statesOK {
		s.cache.UpdateStates(states)
	}
	if mgrOK {
		s.cache.UpdateManagers(managers)
	}
	if dlOK {
		s.cache.UpdateDeadlock(deadlock)
	}

	writeTextfile(s.config.TextfileDir, "gpfs_state", func(reg *prometheus.Registry) {
		prom.AddStates(reg, cachedStates(s.cache))
	})

	s.cache.SetLastPoll(s.Name(), time.Now())
	slog.Debug("state collection complete", "nodes", len(states), "deadlocked", deadlock.Count())
	return nil
}

func cachedStates(c *cache.Cache) []gpfs.NodeState {
	snap := c.Snapshot()
	states := make([]gpfs.NodeState, 0, len(snap.States))
	keys := make([]string, 0, len(snap.States))
	for node := range snap.States {
		keys = append(keys, node)
	}
	slices.Sort(keys)
	for _, node := range keys {
		states = append(states, *snap.States[node])
	}
	return states
}
