package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// Availability is the state of a disk as mmlsdisk reports it. States a
// newer release may introduce are preserved as-is instead of failing
// the decode; Known reports whether the value is one this package
// understands.
type Availability string

const (
	AvailabilityUp          Availability = "up"
	AvailabilityDown        Availability = "down"
	AvailabilityRecovering  Availability = "recovering"
	AvailabilityUnrecovered Availability = "unrecovered"
)

// ParseAvailability maps a raw availability string, preserving unknown
// values.
func ParseAvailability(s string) Availability {
	switch a := Availability(s); a {
	case AvailabilityUp, AvailabilityDown, AvailabilityRecovering, AvailabilityUnrecovered:
		return a
	}
	return Availability(s)
}

// Known reports whether the availability is one of the documented
// states.
func (a Availability) Known() bool {
	switch a {
	case AvailabilityUp, AvailabilityDown, AvailabilityRecovering, AvailabilityUnrecovered:
		return true
	}
	return false
}

// Healthy reports whether the disk is up.
func (a Availability) Healthy() bool { return a == AvailabilityUp }

// DiskStatus is the administrative status of a disk, orthogonal to its
// availability: a suspended disk can still be up. Unknown values are
// preserved raw, like Availability.
type DiskStatus string

const (
	DiskStatusReady        DiskStatus = "ready"
	DiskStatusSuspended    DiskStatus = "suspended"
	DiskStatusBeingEmptied DiskStatus = "being emptied"
	DiskStatusToBeEmptied  DiskStatus = "to be emptied"
)

// ParseDiskStatus maps a raw status string, preserving unknown values.
func ParseDiskStatus(s string) DiskStatus {
	switch st := DiskStatus(s); st {
	case DiskStatusReady, DiskStatusSuspended, DiskStatusBeingEmptied, DiskStatusToBeEmptied:
		return st
	}
	return DiskStatus(s)
}

// Known reports whether the status is one of the documented states.
func (s DiskStatus) Known() bool {
	switch s {
	case DiskStatusReady, DiskStatusSuspended, DiskStatusBeingEmptied, DiskStatusToBeEmptied:
		return true
	}
	return false
}

// Disk is one mmlsdisk row: a disk of a file system and the storage
// pool it belongs to. FailureGroup is kept verbatim: FPO clusters
// report composite groups like "1,0,1". The descriptive columns beyond
// the grouping set are optional and zero when a header omits them.
type Disk struct {
	Name         string
	DriverType   string
	SectorSize   uint64
	FailureGroup string
	Metadata     bool
	Data         bool
	Status       DiskStatus
	Availability Availability
	DiskID       uint64
	Pool         string
	Remarks      string
}

var diskSchema = ytab.Schema{
	Entity: "disk",
	Columns: []ytab.Column{
		{Name: "nsdName", Kind: ytab.String, Required: true},
		{Name: "driverType", Kind: ytab.String},
		{Name: "sectorSize", Kind: ytab.Uint},
		{Name: "failureGroup", Kind: ytab.String},
		{Name: "metadata", Kind: ytab.Bool, Required: true},
		{Name: "data", Kind: ytab.Bool, Required: true},
		{Name: "status", Kind: ytab.String},
		{Name: "availability", Kind: ytab.String, Required: true},
		{Name: "diskID", Kind: ytab.Uint},
		{Name: "storagePool", Kind: ytab.String, Required: true},
		{Name: "remarks", Kind: ytab.String},
	},
}

// Disks runs mmlsdisk for one file system.
func Disks(ctx context.Context, run Runner, fs string) ([]Disk, *Report, error) {
	out, err := run.Run(ctx, "mmlsdisk", fs, "-Y")
	if err != nil {
		return nil, nil, fmt.Errorf("listing disks of %s: %w", fs, err)
	}
	disks, rep := ParseDisks(bytes.NewReader(out))
	return disks, rep, nil
}

// ParseDisks decodes mmlsdisk -Y output.
func ParseDisks(r io.Reader) ([]Disk, *Report) {
	var disks []Disk
	rep := scanRows(r, &diskSchema, func(row ytab.BoundRow) error {
		d, err := decodeDisk(row)
		if err != nil {
			return err
		}
		disks = append(disks, d)
		return nil
	})
	return disks, rep
}

func decodeDisk(row ytab.BoundRow) (Disk, error) {
	meta, err := row.Bool("metadata")
	if err != nil {
		return Disk{}, err
	}
	data, err := row.Bool("data")
	if err != nil {
		return Disk{}, err
	}
	d := Disk{
		Name:         row.String("nsdName"),
		DriverType:   row.String("driverType"),
		FailureGroup: row.String("failureGroup"),
		Metadata:     meta,
		Data:         data,
		Status:       ParseDiskStatus(row.String("status")),
		Availability: ParseAvailability(row.String("availability")),
		Pool:         row.String("storagePool"),
		Remarks:      row.String("remarks"),
	}
	if row.Has("sectorSize") {
		if d.SectorSize, err = row.Uint("sectorSize"); err != nil {
			return Disk{}, err
		}
	}
	if row.Has("diskID") {
		if d.DiskID, err = row.Uint("diskID"); err != nil {
			return Disk{}, err
		}
	}
	return d, nil
}
