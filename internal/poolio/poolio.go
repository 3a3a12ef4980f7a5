// Package poolio tracks per-pool I/O rates for the NSDs served by the
// local node.
//
// Topology (which devices feed which pool) is rebuilt from the cluster
// on every refresh, so disks added to or removed from a filesystem are
// reflected on the next cycle. Only the previous counter sample
// persists between refreshes, keyed by device, and it is replaced
// wholesale each cycle.
package poolio

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/sysblock"
)

// GroupKey identifies one pool of one filesystem.
type GroupKey struct {
	Filesystem string
	Pool       string
}

// Member is a local NSD resolved to its block device.
type Member struct {
	NSD    string
	Device string
}

// Topology maps pool groups to the local devices backing them.
type Topology struct {
	Groups map[GroupKey][]Member

	// Unassigned counts local NSDs that no filesystem's disk list
	// claims. They are excluded from every group.
	Unassigned int
}

// Devices returns the base device names of every member, deduplicated.
func (t *Topology) Devices() []string {
	seen := make(map[string]struct{})
	var devices []string

	for _, members := range t.Groups {
		for _, m := range members {
			if _, ok := seen[m.Device]; ok {
				continue
			}
			seen[m.Device] = struct{}{}
			devices = append(devices, m.Device)
		}
	}

	slices.Sort(devices)
	return devices
}

// ResolveTopology groups this node's NSDs by (filesystem, pool). The
// pool of an NSD comes from the disk entry carrying the same NSD name
// in one of the cluster's filesystems.
func ResolveTopology(ctx context.Context, run gpfs.Runner, deviceCache string, force bool) (*Topology, error) {
	nsds, err := LocalNSDs(ctx, run, deviceCache, force)
	if err != nil {
		return nil, err
	}

	names, rep, err := gpfs.FilesystemNames(ctx, run)
	if err != nil {
		return nil, err
	}
	if err := rep.Err(); err != nil {
		return nil, fmt.Errorf("listing file systems: %w", err)
	}

	topo := &Topology{Groups: make(map[GroupKey][]Member)}
	assigned := make(map[string]struct{}, len(nsds))

	for _, fs := range names {
		disks, rep, err := gpfs.Disks(ctx, run, fs)
		if err != nil {
			return nil, err
		}
		if err := rep.Err(); err != nil {
			return nil, fmt.Errorf("disks of %s: %w", fs, err)
		}

		for _, nsd := range nsds {
			disk, ok := findDisk(disks, nsd.Name)
			if !ok {
				continue
			}

			device, err := nsd.DeviceName()
			if err != nil {
				return nil, err
			}

			key := GroupKey{Filesystem: fs, Pool: disk.Pool}
			topo.Groups[key] = append(topo.Groups[key], Member{NSD: nsd.Name, Device: device})
			assigned[nsd.Name] = struct{}{}
		}
	}

	topo.Unassigned = len(nsds) - len(assigned)

	return topo, nil
}

func findDisk(disks []gpfs.Disk, nsdName string) (gpfs.Disk, bool) {
	for _, d := range disks {
		if d.Name == nsdName {
			return d, true
		}
	}
	return gpfs.Disk{}, false
}

// GroupList returns the topology as groups with zero rates, sorted by
// filesystem and pool. One-shot callers that only need membership use
// this instead of a refresh cycle.
func (t *Topology) GroupList() []Group {
	groups, _ := advance(t, nil, sample{}, time.Time{})
	return groups
}

// Group is the published I/O state of one pool group.
type Group struct {
	Filesystem string
	Pool       string
	Devices    []string

	ReadBytesPerSec  float64
	WriteBytesPerSec float64

	// ResetDevices counts members whose counters went backwards this
	// interval, e.g. after a device reattach. Their deltas are left
	// out of the rates instead of producing negative values.
	ResetDevices int
}

// Snapshot is one fully committed refresh result. Snapshots are
// immutable once published; readers must not modify them.
type Snapshot struct {
	Groups     []Group
	Unassigned int

	// Taken is when the counters behind the rates were read. It is
	// carried unchanged when the snapshot is marked stale, so readers
	// can judge the age of the data.
	Taken time.Time

	// Stale is set after the configured number of consecutive refresh
	// failures. The groups still hold the last good data.
	Stale bool
}

// Group returns the group for the given filesystem and pool.
func (s *Snapshot) Group(fs, pool string) (Group, bool) {
	for _, g := range s.Groups {
		if g.Filesystem == fs && g.Pool == pool {
			return g, true
		}
	}
	return Group{}, false
}

// sample is one reading of every member device's counters.
type sample struct {
	taken time.Time
	stats map[string]sysblock.Stat
}

// advance turns the current counter reading into per-group rates
// against the previous sample and returns the sample to carry forward.
// With no previous sample, or none taken earlier than now, every rate
// is zero.
func advance(topo *Topology, stats map[string]sysblock.Stat, prev sample, now time.Time) ([]Group, sample) {
	elapsed := now.Sub(prev.taken).Seconds()
	cold := prev.taken.IsZero() || elapsed <= 0

	groups := make([]Group, 0, len(topo.Groups))

	for key, members := range topo.Groups {
		g := Group{Filesystem: key.Filesystem, Pool: key.Pool}

		var readDelta, writeDelta uint64

		for _, m := range members {
			g.Devices = append(g.Devices, m.Device)

			if cold {
				continue
			}

			cur, ok := stats[m.Device]
			if !ok {
				continue
			}
			last, ok := prev.stats[m.Device]
			if !ok {
				continue
			}

			reset := false
			if cur.ReadSectors >= last.ReadSectors {
				readDelta += cur.ReadBytes() - last.ReadBytes()
			} else {
				reset = true
			}
			if cur.WriteSectors >= last.WriteSectors {
				writeDelta += cur.WriteBytes() - last.WriteBytes()
			} else {
				reset = true
			}
			if reset {
				g.ResetDevices++
			}
		}

		if !cold {
			g.ReadBytesPerSec = float64(readDelta) / elapsed
			g.WriteBytesPerSec = float64(writeDelta) / elapsed
		}

		slices.Sort(g.Devices)
		g.Devices = slices.Compact(g.Devices)

		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(a.Filesystem, b.Filesystem); c != 0 {
			return c
		}
		return cmp.Compare(a.Pool, b.Pool)
	})

	return groups, sample{taken: now, stats: stats}
}
