package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

var fsSchema = ytab.Schema{
	Entity: "filesystem",
	Columns: []ytab.Column{
		{Name: "deviceName", Kind: ytab.String, Required: true},
	},
}

// FilesystemNames returns the device names of all file systems in the
// cluster. Asking mmlsfs for just the block size attribute keeps the
// output to one row per file system.
func FilesystemNames(ctx context.Context, run Runner) ([]string, *Report, error) {
	out, err := run.Run(ctx, "mmlsfs", "all", "-Y", "-B")
	if err != nil {
		return nil, nil, fmt.Errorf("listing file systems: %w", err)
	}
	names, rep := ParseFilesystemNames(bytes.NewReader(out))
	return names, rep, nil
}

// ParseFilesystemNames decodes mmlsfs output into a deduplicated list
// of device names, preserving first-seen order.
func ParseFilesystemNames(r io.Reader) ([]string, *Report) {
	var names []string
	seen := make(map[string]struct{})
	rep := scanRows(r, &fsSchema, func(row ytab.BoundRow) error {
		name := row.String("deviceName")
		if _, dup := seen[name]; dup || name == "" {
			return nil
		}
		seen[name] = struct{}{}
		names = append(names, name)
		return nil
	})
	return names, rep
}
