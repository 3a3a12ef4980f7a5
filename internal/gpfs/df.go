package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// Df is the capacity report of one file system: per-disk rows, per-pool
// totals and the file system total, as mmdf reports them.
type Df struct {
	Filesystem string
	Disks      []DfDisk
	Pools      []DfPool
	Total      DfTotal
}

// DfDisk is one row of the mmdf nsd section.
type DfDisk struct {
	Name                string
	Pool                string
	SizeBytes           uint64
	Metadata            bool
	Data                bool
	FreeBytes           uint64
	FreePercent         uint64
	FreeFragmentBytes   uint64
	FreeFragmentPercent uint64
}

// DfPool is one row of the mmdf poolTotal section. Disks counts the
// nsd rows reported under the pool. MaxDiskSizeBytes is the largest
// disk the pool accepts; zero on releases that omit the column.
type DfPool struct {
	Name                string
	Disks               int
	SizeBytes           uint64
	FreeBytes           uint64
	FreePercent         uint64
	FreeFragmentBytes   uint64
	FreeFragmentPercent uint64
	MaxDiskSizeBytes    uint64
}

// DfTotal is the single row of the mmdf fsTotal section.
type DfTotal struct {
	SizeBytes           uint64
	FreeBytes           uint64
	FreePercent         uint64
	FreeFragmentBytes   uint64
	FreeFragmentPercent uint64
}

var (
	dfDiskSchema = ytab.Schema{
		Entity: "df-disk",
		Columns: []ytab.Column{
			{Name: "nsdName", Kind: ytab.String, Required: true},
			{Name: "storagePool", Kind: ytab.String, Required: true},
			{Name: "diskSize", Kind: ytab.Size, Required: true},
			{Name: "metadata", Kind: ytab.Bool, Required: true},
			{Name: "data", Kind: ytab.Bool, Required: true},
			{Name: "freeBlocks", Kind: ytab.Size, Required: true},
			{Name: "freeBlocksPct", Kind: ytab.Uint, Required: true},
			{Name: "freeFragments", Kind: ytab.Size, Required: true},
			{Name: "freeFragmentsPct", Kind: ytab.Uint, Required: true},
		},
	}

	dfPoolSchema = ytab.Schema{
		Entity: "df-pool",
		Columns: []ytab.Column{
			{Name: "poolName", Kind: ytab.String, Required: true},
			{Name: "poolSize", Kind: ytab.Size, Required: true},
			{Name: "freeBlocks", Kind: ytab.Size, Required: true},
			{Name: "freeBlocksPct", Kind: ytab.Uint, Required: true},
			{Name: "freeFragments", Kind: ytab.Size, Required: true},
			{Name: "freeFragmentsPct", Kind: ytab.Uint, Required: true},
			{Name: "maxDiskSize", Kind: ytab.Size, Required: false},
		},
	}

	dfTotalSchema = ytab.Schema{
		Entity: "df-total",
		Columns: []ytab.Column{
			{Name: "fsSize", Kind: ytab.Size, Required: true},
			{Name: "freeBlocks", Kind: ytab.Size, Required: true},
			{Name: "freeBlocksPct", Kind: ytab.Uint, Required: true},
			{Name: "freeFragments", Kind: ytab.Size, Required: true},
			{Name: "freeFragmentsPct", Kind: ytab.Uint, Required: true},
		},
	}
)

// DfReport runs mmdf for one file system.
func DfReport(ctx context.Context, run Runner, fs string) (Df, *Report, error) {
	out, err := run.Run(ctx, "mmdf", fs, "-Y")
	if err != nil {
		return Df{}, nil, fmt.Errorf("fetching capacity of %s: %w", fs, err)
	}
	df, rep := ParseDf(fs, bytes.NewReader(out))
	return df, rep, nil
}

// ParseDf decodes mmdf -Y output. The blob carries three sections; any
// other section is skipped, not failed.
func ParseDf(fs string, r io.Reader) (Df, *Report) {
	df := Df{Filesystem: fs}
	rep := scanSections(r, map[string]section{
		"nsd": {schema: &dfDiskSchema, row: func(row ytab.BoundRow) error {
			d, err := decodeDfDisk(row)
			if err != nil {
				return err
			}
			df.Disks = append(df.Disks, d)
			return nil
		}},
		"poolTotal": {schema: &dfPoolSchema, row: func(row ytab.BoundRow) error {
			p, err := decodeDfPool(row)
			if err != nil {
				return err
			}
			df.Pools = append(df.Pools, p)
			return nil
		}},
		"fsTotal": {schema: &dfTotalSchema, row: func(row ytab.BoundRow) error {
			t, err := decodeDfTotal(row)
			if err != nil {
				return err
			}
			df.Total = t
			return nil
		}},
	})

	perPool := make(map[string]int, len(df.Pools))
	for _, d := range df.Disks {
		perPool[d.Pool]++
	}
	for i := range df.Pools {
		df.Pools[i].Disks = perPool[df.Pools[i].Name]
	}
	return df, rep
}

func decodeDfDisk(row ytab.BoundRow) (DfDisk, error) {
	var d DfDisk
	var err error
	d.Name = row.String("nsdName")
	d.Pool = row.String("storagePool")
	if d.SizeBytes, err = row.Size("diskSize"); err != nil {
		return DfDisk{}, err
	}
	if d.Metadata, err = row.Bool("metadata"); err != nil {
		return DfDisk{}, err
	}
	if d.Data, err = row.Bool("data"); err != nil {
		return DfDisk{}, err
	}
	if d.FreeBytes, err = row.Size("freeBlocks"); err != nil {
		return DfDisk{}, err
	}
	if d.FreePercent, err = row.Uint("freeBlocksPct"); err != nil {
		return DfDisk{}, err
	}
	if d.FreeFragmentBytes, err = row.Size("freeFragments"); err != nil {
		return DfDisk{}, err
	}
	if d.FreeFragmentPercent, err = row.Uint("freeFragmentsPct"); err != nil {
		return DfDisk{}, err
	}
	return d, nil
}

func decodeDfPool(row ytab.BoundRow) (DfPool, error) {
	var p DfPool
	var err error
	p.Name = row.String("poolName")
	if p.SizeBytes, err = row.Size("poolSize"); err != nil {
		return DfPool{}, err
	}
	if p.FreeBytes, err = row.Size("freeBlocks"); err != nil {
		return DfPool{}, err
	}
	if p.FreePercent, err = row.Uint("freeBlocksPct"); err != nil {
		return DfPool{}, err
	}
	if p.FreeFragmentBytes, err = row.Size("freeFragments"); err != nil {
		return DfPool{}, err
	}
	if p.FreeFragmentPercent, err = row.Uint("freeFragmentsPct"); err != nil {
		return DfPool{}, err
	}
	if row.Has("maxDiskSize") {
		if p.MaxDiskSizeBytes, err = row.Size("maxDiskSize"); err != nil {
			return DfPool{}, err
		}
	}
	return p, nil
}

func decodeDfTotal(row ytab.BoundRow) (DfTotal, error) {
	var t DfTotal
	var err error
	if t.SizeBytes, err = row.Size("fsSize"); err != nil {
		return DfTotal{}, err
	}
	if t.FreeBytes, err = row.Size("freeBlocks"); err != nil {
		return DfTotal{}, err
	}
	if t.FreePercent, err = row.Uint("freeBlocksPct"); err != nil {
		return DfTotal{}, err
	}
	if t.FreeFragmentBytes, err = row.Size("freeFragments"); err != nil {
		return DfTotal{}, err
	}
	if t.FreeFragmentPercent, err = row.Uint("freeFragmentsPct"); err != nil {
		return DfTotal{}, err
	}
	return t, nil
}
