package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// Managers holds the cluster manager and the per-filesystem managers
// from one mmlsmgr run.
type Managers struct {
	Cluster     string
	Filesystems []FilesystemManager
}

// FilesystemManager names the node managing one file system.
type FilesystemManager struct {
	Filesystem string
	Node       string
	IP         string
}

var (
	clusterMgrSchema = ytab.Schema{
		Entity: "cluster-manager",
		Columns: []ytab.Column{
			{Name: "manager", Kind: ytab.String, Required: true},
		},
	}

	fsMgrSchema = ytab.Schema{
		Entity: "filesystem-manager",
		Columns: []ytab.Column{
			{Name: "filesystem", Kind: ytab.String, Required: true},
			{Name: "manager", Kind: ytab.String, Required: true},
			{Name: "managerIP", Kind: ytab.String, Required: true},
		},
	}
)

// ClusterManagers runs mmlsmgr for the whole cluster.
func ClusterManagers(ctx context.Context, run Runner) (Managers, *Report, error) {
	out, err := run.Run(ctx, "mmlsmgr", "-Y")
	if err != nil {
		return Managers{}, nil, fmt.Errorf("fetching managers: %w", err)
	}
	m, rep := ParseManagers(bytes.NewReader(out))
	return m, rep, nil
}

// ParseManagers decodes mmlsmgr -Y output.
func ParseManagers(r io.Reader) (Managers, *Report) {
	var m Managers
	rep := scanSections(r, map[string]section{
		"clusterManager": {schema: &clusterMgrSchema, row: func(row ytab.BoundRow) error {
			m.Cluster = row.String("manager")
			return nil
		}},
		"filesystemManager": {schema: &fsMgrSchema, row: func(row ytab.BoundRow) error {
			m.Filesystems = append(m.Filesystems, FilesystemManager{
				Filesystem: row.String("filesystem"),
				Node:       row.String("manager"),
				IP:         row.String("managerIP"),
			})
			return nil
		}},
	})
	return m, rep
}
