package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// NSD is one mmlsnsd -X row: a network shared disk, the server nodes
// that export it, and the local device path on whichever server ran the
// command.
type NSD struct {
	Name    string
	Servers []string
	Device  string // local device path, e.g. /dev/dm-3; may be "-" or empty on clients
}

// ServedBy reports whether node is one of the NSD's servers.
func (n NSD) ServedBy(node string) bool {
	return slices.Contains(n.Servers, node)
}

// DeviceName returns the base name of the NSD's local device path.
func (n NSD) DeviceName() (string, error) {
	name := path.Base(n.Device)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no device name for NSD %s in path %q", n.Name, n.Device)
	}
	return name, nil
}

var nsdSchema = ytab.Schema{
	Entity: "nsd",
	Columns: []ytab.Column{
		{Name: "diskName", Kind: ytab.String, Required: true},
		{Name: "serverList", Kind: ytab.List, Required: true},
		{Name: "localDiskName", Kind: ytab.String, Required: true},
	},
}

// NSDs runs mmlsnsd -X for the whole cluster. This walks every disk on
// every server and is expensive; steady-state callers should go through
// the device cache instead.
func NSDs(ctx context.Context, run Runner) ([]NSD, *Report, error) {
	out, err := run.Run(ctx, "mmlsnsd", "-X", "-Y")
	if err != nil {
		return nil, nil, fmt.Errorf("listing NSDs: %w", err)
	}
	nsds, rep := ParseNSDs(bytes.NewReader(out))
	return nsds, rep, nil
}

// LocalNSDs returns the NSDs served by the local node.
func LocalNSDs(ctx context.Context, run Runner) ([]NSD, *Report, error) {
	node, err := LocalNodeName(ctx, run)
	if err != nil {
		return nil, nil, fmt.Errorf("determining local node name: %w", err)
	}
	nsds, rep, err := NSDs(ctx, run)
	if err != nil {
		return nil, rep, err
	}
	local := nsds[:0]
	for _, n := range nsds {
		if n.ServedBy(node) {
			local = append(local, n)
		}
	}
	return slices.Clip(local), rep, nil
}

// ParseNSDs decodes mmlsnsd -X -Y output.
func ParseNSDs(r io.Reader) ([]NSD, *Report) {
	var nsds []NSD
	rep := scanRows(r, &nsdSchema, func(row ytab.BoundRow) error {
		servers, err := row.List("serverList")
		if err != nil {
			return err
		}
		nsds = append(nsds, NSD{
			Name:    row.String("diskName"),
			Servers: servers,
			Device:  row.String("localDiskName"),
		})
		return nil
	})
	return nsds, rep
}
