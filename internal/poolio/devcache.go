package poolio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsops/gpfsmon/internal/gpfs"
)

// DefaultDeviceCache is where the local NSD device map is kept between
// runs. Resolving the map needs mmlsnsd -X, which walks the whole
// cluster, so steady-state refreshes read this file instead.
const DefaultDeviceCache = "/run/gpfsmon/nsd-devices"

// LocalNSDs returns the NSDs served by this node. The device cache at
// path is used when it exists; force rebuilds it from the cluster
// first. A rebuilt cache is written back to path.
func LocalNSDs(ctx context.Context, run gpfs.Runner, path string, force bool) ([]gpfs.NSD, error) {
	if !force {
		nsds, err := readDeviceCache(ctx, run, path)
		if err == nil {
			return nsds, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return rebuildDeviceCache(ctx, run, path)
}

func readDeviceCache(ctx context.Context, run gpfs.Runner, path string) ([]gpfs.NSD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening device cache: %w", err)
	}
	defer f.Close()

	// The cache only lists NSDs this node serves, so the server list
	// is always just the local node.
	node, err := gpfs.LocalNodeName(ctx, run)
	if err != nil {
		return nil, err
	}

	var nsds []gpfs.NSD

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		name, device, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("device cache %s: malformed line %q", path, line)
		}

		nsds = append(nsds, gpfs.NSD{
			Name:    name,
			Servers: []string{node},
			Device:  device,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading device cache %s: %w", path, err)
	}

	return nsds, nil
}

func rebuildDeviceCache(ctx context.Context, run gpfs.Runner, path string) ([]gpfs.NSD, error) {
	nsds, rep, err := gpfs.LocalNSDs(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("fetching local NSDs: %w", err)
	}
	if err := rep.Err(); err != nil {
		return nil, fmt.Errorf("fetching local NSDs: %w", err)
	}

	if err := writeDeviceCache(path, nsds); err != nil {
		return nil, err
	}

	return nsds, nil
}

func writeDeviceCache(path string, nsds []gpfs.NSD) error {
	var buf bytes.Buffer
	for _, nsd := range nsds {
		fmt.Fprintf(&buf, "%s:%s\n", nsd.Name, nsd.Device)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating device cache directory: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing device cache %s: %w", path, err)
	}

	return nil
}
