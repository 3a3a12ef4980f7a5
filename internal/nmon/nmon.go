// Package nmon writes the feed files consumed by nmon's external
// disk-group support: a group file naming the devices behind each
// (filesystem, pool) pair, and a rates feed with the current read and
// write bytes per second of each group.
//
// Both files are replaced with a rename so the consumer, which polls at
// sub-second intervals, never reads a half-written file.
package nmon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsops/gpfsmon/internal/poolio"
)

const (
	// DefaultGroupFile is the default path of the disk-group file.
	DefaultGroupFile = "/run/gpfsmon/nmon-groups"

	// DefaultRatesFile is the default path of the rates feed.
	DefaultRatesFile = "/run/gpfsmon/nmon-rates"
)

// FormatGroups renders the disk-group file: one line per group with the
// group label followed by its member devices.
func FormatGroups(groups []poolio.Group) string {
	var b strings.Builder
	for _, g := range groups {
		parts := append([]string{g.Filesystem + "-" + g.Pool}, g.Devices...)
		b.WriteString(strings.Join(parts, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatRates renders the rates feed: group label, read rate and write
// rate in whole bytes per second.
func FormatRates(groups []poolio.Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "%s-%s %.0f %.0f\n",
			g.Filesystem, g.Pool, g.ReadBytesPerSec, g.WriteBytesPerSec)
	}
	return b.String()
}

// WriteGroups atomically writes the disk-group file.
func WriteGroups(path string, groups []poolio.Group) error {
	return writeAtomic(path, []byte(FormatGroups(groups)))
}

// WriteRates atomically writes the rates feed.
func WriteRates(path string, groups []poolio.Group) error {
	return writeAtomic(path, []byte(FormatRates(groups)))
}

// writeAtomic replaces path in one rename so a concurrent reader sees
// either the old file or the new one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating feed directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp feed file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing feed file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting feed file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing feed file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing feed file %s: %w", path, err)
	}

	return nil
}

// SnapshotSource yields the latest pool I/O snapshot.
type SnapshotSource interface {
	Current() *poolio.Snapshot
}

// FeederConfig configures a Feeder. Zero fields take the defaults.
type FeederConfig struct {
	Source    SnapshotSource
	GroupFile string        // DefaultGroupFile
	RatesFile string        // DefaultRatesFile
	Interval  time.Duration // 2s
}

// Feeder periodically rewrites both feed files from the latest
// snapshot.
type Feeder struct {
	source    SnapshotSource
	groupFile string
	ratesFile string
	interval  time.Duration
}

// NewFeeder creates a feeder for the given snapshot source.
func NewFeeder(cfg FeederConfig) *Feeder {
	if cfg.GroupFile == "" {
		cfg.GroupFile = DefaultGroupFile
	}
	if cfg.RatesFile == "" {
		cfg.RatesFile = DefaultRatesFile
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}

	return &Feeder{
		source:    cfg.Source,
		groupFile: cfg.GroupFile,
		ratesFile: cfg.RatesFile,
		interval:  cfg.Interval,
	}
}

// Run rewrites the feeds on the interval until ctx is cancelled. A
// stale or not-yet-populated snapshot leaves the files untouched, so
// the consumer sees their age instead of frozen values.
func (f *Feeder) Run(ctx context.Context) error {
	slog.Info("nmon feeder started",
		"groups", f.groupFile,
		"rates", f.ratesFile,
		"interval", f.interval)

	f.cycle()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("nmon feeder stopped")
			return ctx.Err()
		case <-ticker.C:
			f.cycle()
		}
	}
}

func (f *Feeder) cycle() {
	snap := f.source.Current()
	if snap.Taken.IsZero() || snap.Stale {
		return
	}

	if err := WriteGroups(f.groupFile, snap.Groups); err != nil {
		slog.Error("nmon group feed write failed", "error", err)
		return
	}
	if err := WriteRates(f.ratesFile, snap.Groups); err != nil {
		slog.Error("nmon rates feed write failed", "error", err)
	}
}
