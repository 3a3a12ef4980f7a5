// Package sysblock reads block device I/O statistics from the kernel's
// /sys/block tree.
//
// Each device directory carries a stat file with cumulative counters as
// documented in the kernel's Documentation/block/stat.rst. The counters
// are monotonic except across reboots and device re-registration, so
// consumers computing rates must handle resets.
package sysblock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRoot is where the kernel exposes block device directories.
const DefaultRoot = "/sys/block"

// sectorSize is the fixed unit of the sectors counters in the stat file.
// It is independent of the device's logical block size.
const sectorSize = 512

// Stat holds the cumulative I/O counters of one block device.
//
// Sizes are in sectors of 512 bytes, times in milliseconds. Newer kernels
// append discard and flush counters to the stat file; those are ignored.
type Stat struct {
	ReadIOs      uint64
	ReadMerges   uint64
	ReadSectors  uint64
	ReadTicks    uint64
	WriteIOs     uint64
	WriteMerges  uint64
	WriteSectors uint64
	WriteTicks   uint64
	InFlight     uint64
	IOTicks      uint64
	TimeInQueue  uint64
}

// statFields is the number of counters Stat carries. Kernels older than
// 4.19 write exactly this many fields, newer ones write more.
const statFields = 11

// ReadBytes returns the number of bytes read from the device.
func (s Stat) ReadBytes() uint64 {
	return s.ReadSectors * sectorSize
}

// WriteBytes returns the number of bytes written to the device.
func (s Stat) WriteBytes() uint64 {
	return s.WriteSectors * sectorSize
}

// Add returns the field-wise sum of s and o.
func (s Stat) Add(o Stat) Stat {
	return Stat{
		ReadIOs:      s.ReadIOs + o.ReadIOs,
		ReadMerges:   s.ReadMerges + o.ReadMerges,
		ReadSectors:  s.ReadSectors + o.ReadSectors,
		ReadTicks:    s.ReadTicks + o.ReadTicks,
		WriteIOs:     s.WriteIOs + o.WriteIOs,
		WriteMerges:  s.WriteMerges + o.WriteMerges,
		WriteSectors: s.WriteSectors + o.WriteSectors,
		WriteTicks:   s.WriteTicks + o.WriteTicks,
		InFlight:     s.InFlight + o.InFlight,
		IOTicks:      s.IOTicks + o.IOTicks,
		TimeInQueue:  s.TimeInQueue + o.TimeInQueue,
	}
}

// ParseStat parses the contents of a block device stat file.
func ParseStat(data string) (Stat, error) {
	fields := strings.Fields(data)
	if len(fields) < statFields {
		return Stat{}, fmt.Errorf("stat has %d fields, want at least %d", len(fields), statFields)
	}

	var vals [statFields]uint64
	for i := range vals {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return Stat{}, fmt.Errorf("stat field %d: %w", i, err)
		}
		vals[i] = v
	}

	return Stat{
		ReadIOs:      vals[0],
		ReadMerges:   vals[1],
		ReadSectors:  vals[2],
		ReadTicks:    vals[3],
		WriteIOs:     vals[4],
		WriteMerges:  vals[5],
		WriteSectors: vals[6],
		WriteTicks:   vals[7],
		InFlight:     vals[8],
		IOTicks:      vals[9],
		TimeInQueue:  vals[10],
	}, nil
}

// Reader reads device statistics from a sysfs block tree.
//
// The zero value reads from DefaultRoot. Root exists so tests can point
// the reader at a fabricated tree.
type Reader struct {
	Root string
}

func (r Reader) root() string {
	if r.Root == "" {
		return DefaultRoot
	}
	return r.Root
}

// Stat returns the counters of a single device, e.g. "dm-3".
func (r Reader) Stat(device string) (Stat, error) {
	p := filepath.Join(r.root(), device, "stat")

	data, err := os.ReadFile(p)
	if err != nil {
		return Stat{}, fmt.Errorf("reading %s: %w", p, err)
	}

	s, err := ParseStat(string(data))
	if err != nil {
		return Stat{}, fmt.Errorf("parsing %s: %w", p, err)
	}

	return s, nil
}

// StatAll returns the counters of every device under the root, keyed by
// device name.
func (r Reader) StatAll() (map[string]Stat, error) {
	entries, err := os.ReadDir(r.root())
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.root(), err)
	}

	stats := make(map[string]Stat, len(entries))
	for _, e := range entries {
		s, err := r.Stat(e.Name())
		if err != nil {
			return nil, err
		}
		stats[e.Name()] = s
	}

	return stats, nil
}

// StatDevices returns the counters of the named devices only. A device
// missing from the tree is an error.
func (r Reader) StatDevices(devices []string) (map[string]Stat, error) {
	stats := make(map[string]Stat, len(devices))
	for _, dev := range devices {
		s, err := r.Stat(dev)
		if err != nil {
			return nil, err
		}
		stats[dev] = s
	}

	return stats, nil
}
