// Package prom renders gpfs_* metric families for node_exporter's
// textfile collector. Every render starts from a fresh registry so a
// file never carries series for entities that no longer exist; the
// Add functions register their families once per registry.
package prom

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/poolio"
)

// DefaultDir is where node_exporter's textfile collector picks up
// .prom files.
const DefaultDir = "/var/lib/node_exporter/textfile_collector"

func gauge(reg *prometheus.Registry, name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	reg.MustRegister(g)
	return g
}

// AddCapacity registers the file system and pool capacity families and
// fills them from mmdf reports.
func AddCapacity(reg *prometheus.Registry, dfs []gpfs.Df) {
	fsTotal := gauge(reg, "gpfs_fs_total_bytes",
		"Size of the file system in bytes.", "fs")
	fsFree := gauge(reg, "gpfs_fs_free_bytes",
		"Free space of the file system in bytes.", "fs")
	poolTotal := gauge(reg, "gpfs_pool_total_bytes",
		"Size of the storage pool in bytes.", "fs", "pool")
	poolFree := gauge(reg, "gpfs_pool_free_bytes",
		"Free space of the storage pool in bytes.", "fs", "pool")
	poolMaxDisk := gauge(reg, "gpfs_pool_max_disk_size_bytes",
		"Largest disk the storage pool accepts, in bytes.", "fs", "pool")
	poolDisks := gauge(reg, "gpfs_pool_disks",
		"Number of disks in the storage pool.", "fs", "pool")

	for _, df := range dfs {
		fsTotal.WithLabelValues(df.Filesystem).Set(float64(df.Total.SizeBytes))
		fsFree.WithLabelValues(df.Filesystem).Set(float64(df.Total.FreeBytes))
		for _, p := range df.Pools {
			poolTotal.WithLabelValues(df.Filesystem, p.Name).Set(float64(p.SizeBytes))
			poolFree.WithLabelValues(df.Filesystem, p.Name).Set(float64(p.FreeBytes))
			poolMaxDisk.WithLabelValues(df.Filesystem, p.Name).Set(float64(p.MaxDiskSizeBytes))
			poolDisks.WithLabelValues(df.Filesystem, p.Name).Set(float64(p.Disks))
		}
	}
}

// AddPoolIO registers the pool throughput families and the staleness
// flag, filled from one aggregation snapshot.
func AddPoolIO(reg *prometheus.Registry, snap *poolio.Snapshot) {
	read := gauge(reg, "gpfs_pool_read_bytes_per_second",
		"Read throughput of the pool's local NSDs.", "fs", "pool")
	write := gauge(reg, "gpfs_pool_write_bytes_per_second",
		"Write throughput of the pool's local NSDs.", "fs", "pool")
	stale := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gpfs_poolio_stale",
		Help: "1 when the pool I/O snapshot is past its freshness window.",
	})
	reg.MustRegister(stale)

	for _, g := range snap.Groups {
		read.WithLabelValues(g.Filesystem, g.Pool).Set(g.ReadBytesPerSec)
		write.WithLabelValues(g.Filesystem, g.Pool).Set(g.WriteBytesPerSec)
	}
	if snap.Stale {
		stale.Set(1)
	}
}

// AddQuotas registers the quota families. Usage can dip below zero
// while the quota server reconciles in-doubt space; the gauge carries
// the negative value as reported.
func AddQuotas(reg *prometheus.Registry, entries []gpfs.QuotaEntry) {
	labels := []string{"fs", "type", "id", "name", "fileset"}
	blockUsage := gauge(reg, "gpfs_quota_block_usage_bytes",
		"Block usage of the quota subject in bytes.", labels...)
	blockSoft := gauge(reg, "gpfs_quota_block_soft_limit_bytes",
		"Soft block limit of the quota subject in bytes.", labels...)
	blockHard := gauge(reg, "gpfs_quota_block_hard_limit_bytes",
		"Hard block limit of the quota subject in bytes.", labels...)
	filesUsage := gauge(reg, "gpfs_quota_files_usage",
		"Inodes used by the quota subject.", labels...)

	for _, e := range entries {
		vals := []string{
			e.Filesystem,
			string(e.Kind),
			strconv.FormatUint(e.ID, 10),
			e.Name,
			e.Fileset,
		}
		blockUsage.WithLabelValues(vals...).Set(float64(e.BlockUsageBytes))
		blockSoft.WithLabelValues(vals...).Set(float64(e.BlockQuotaBytes))
		blockHard.WithLabelValues(vals...).Set(float64(e.BlockLimitBytes))
		filesUsage.WithLabelValues(vals...).Set(float64(e.FilesUsage))
	}
}

// AddFilesets registers the fileset inode families.
func AddFilesets(reg *prometheus.Registry, filesets []gpfs.Fileset) {
	maxInodes := gauge(reg, "gpfs_fileset_max_inodes",
		"Maximum inodes of the fileset.", "fs", "fileset")
	allocInodes := gauge(reg, "gpfs_fileset_alloc_inodes",
		"Inodes allocated to the fileset.", "fs", "fileset")

	for _, f := range filesets {
		maxInodes.WithLabelValues(f.Filesystem, f.Name).Set(float64(f.MaxInodes))
		allocInodes.WithLabelValues(f.Filesystem, f.Name).Set(float64(f.AllocInodes))
	}
}

// AddStates registers the node state family: 1 when the daemon on the
// node is active, 0 otherwise. The state label carries the verbatim
// mmgetstate state.
func AddStates(reg *prometheus.Registry, states []gpfs.NodeState) {
	nodeState := gauge(reg, "gpfs_node_state",
		"1 when the GPFS daemon on the node is active.", "node", "state")

	for _, s := range states {
		v := 0.0
		if s.Active() {
			v = 1.0
		}
		nodeState.WithLabelValues(s.Node, s.State).Set(v)
	}
}

// WriteFile renders the registry to <dir>/<name>.prom. The rename into
// place is atomic, so node_exporter never scrapes a torn file.
func WriteFile(dir, name string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating textfile directory: %w", err)
	}
	path := filepath.Join(dir, name+".prom")
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Write renders the registry in text exposition format, for one-shot
// commands printing to stdout.
func Write(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
