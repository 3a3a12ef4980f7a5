package cache

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fsops/gpfsmon/internal/gpfs"
)

// Cache is a thread-safe in-memory store for all polled data.
type Cache struct {
	mu sync.RWMutex

	Capacity map[string]*gpfs.Df
	Disks    map[string][]gpfs.Disk
	Quotas   map[string][]gpfs.QuotaEntry
	Filesets map[string][]gpfs.Fileset
	States   map[string]*gpfs.NodeState
	Managers gpfs.Managers
	Deadlock gpfs.Deadlock
	LastPoll map[string]time.Time
}

// Snapshot is a read-only deep copy of the cache state.
type Snapshot struct {
	Capacity map[string]*gpfs.Df
	Disks    map[string][]gpfs.Disk
	Quotas   map[string][]gpfs.QuotaEntry
	Filesets map[string][]gpfs.Fileset
	States   map[string]*gpfs.NodeState
	Managers gpfs.Managers
	Deadlock gpfs.Deadlock
	LastPoll map[string]time.Time
}

// New returns an initialized Cache.
func New() *Cache {
	return &Cache{
		Capacity: make(map[string]*gpfs.Df),
		Disks:    make(map[string][]gpfs.Disk),
		Quotas:   make(map[string][]gpfs.QuotaEntry),
		Filesets: make(map[string][]gpfs.Fileset),
		States:   make(map[string]*gpfs.NodeState),
		LastPoll: make(map[string]time.Time),
	}
}

// Snapshot returns a deep copy of the cache contents.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Capacity: make(map[string]*gpfs.Df, len(c.Capacity)),
		Disks:    make(map[string][]gpfs.Disk, len(c.Disks)),
		Quotas:   make(map[string][]gpfs.QuotaEntry, len(c.Quotas)),
		Filesets: make(map[string][]gpfs.Fileset, len(c.Filesets)),
		States:   make(map[string]*gpfs.NodeState, len(c.States)),
		LastPoll: make(map[string]time.Time, len(c.LastPoll)),
	}

	for fs, df := range c.Capacity {
		cp := *df
		cp.Disks = slices.Clone(df.Disks)
		cp.Pools = slices.Clone(df.Pools)
		snap.Capacity[fs] = &cp
	}

	for fs, disks := range c.Disks {
		snap.Disks[fs] = slices.Clone(disks)
	}

	for fs, entries := range c.Quotas {
		snap.Quotas[fs] = slices.Clone(entries)
	}

	for fs, filesets := range c.Filesets {
		snap.Filesets[fs] = slices.Clone(filesets)
	}

	for node, s := range c.States {
		cp := *s
		snap.States[node] = &cp
	}

	snap.Managers = c.Managers
	snap.Managers.Filesystems = slices.Clone(c.Managers.Filesystems)
	snap.Deadlock.Nodes = slices.Clone(c.Deadlock.Nodes)

	maps.Copy(snap.LastPoll, c.LastPoll)

	return snap
}

// UpdateCapacity replaces the capacity report of the given file system.
func (c *Cache) UpdateCapacity(fs string, df *gpfs.Df) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capacity[fs] = df
}

// UpdateDisks replaces all disks of the given file system.
func (c *Cache) UpdateDisks(fs string, disks []gpfs.Disk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Disks[fs] = disks
}

// UpdateQuotas replaces all quota entries of the given file system.
func (c *Cache) UpdateQuotas(fs string, entries []gpfs.QuotaEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Quotas[fs] = entries
}

// UpdateFilesets replaces all filesets of the given file system.
func (c *Cache) UpdateFilesets(fs string, filesets []gpfs.Fileset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Filesets[fs] = filesets
}

// UpdateStates replaces the daemon state of every node.
func (c *Cache) UpdateStates(states []gpfs.NodeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]*gpfs.NodeState, len(states))
	for i := range states {
		m[states[i].Node] = &states[i]
	}
	c.States = m
}

// UpdateManagers replaces the cluster and file system managers.
func (c *Cache) UpdateManagers(m gpfs.Managers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Managers = m
}

// UpdateDeadlock replaces the deadlock report.
func (c *Cache) UpdateDeadlock(d gpfs.Deadlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deadlock = d
}

// RetainFilesystems drops per-filesystem entries for file systems that
// no longer appear in the mmlsfs listing.
func (c *Cache) RetainFilesystems(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	retain(c.Capacity, names)
	retain(c.Disks, names)
	retain(c.Quotas, names)
	retain(c.Filesets, names)
}

func retain[V any](m map[string]V, names []string) {
	for fs := range m {
		if !slices.Contains(names, fs) {
			delete(m, fs)
		}
	}
}

// SetLastPoll records the last poll time for a collector.
func (c *Cache) SetLastPoll(collectorID string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastPoll[collectorID] = t
}
