package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// Fileset is one mmlsfileset row: a fileset and its inode allocation.
type Fileset struct {
	Filesystem  string
	Name        string
	MaxInodes   uint64
	AllocInodes uint64
}

var filesetSchema = ytab.Schema{
	Entity: "fileset",
	Columns: []ytab.Column{
		{Name: "filesystemName", Kind: ytab.String, Required: true},
		{Name: "filesetName", Kind: ytab.String, Required: true},
		{Name: "maxInodes", Kind: ytab.Uint, Required: true},
		{Name: "allocInodes", Kind: ytab.Uint, Required: true},
	},
}

// Filesets runs mmlsfileset for one file system.
func Filesets(ctx context.Context, run Runner, fs string) ([]Fileset, *Report, error) {
	out, err := run.Run(ctx, "mmlsfileset", fs, "-Y")
	if err != nil {
		return nil, nil, fmt.Errorf("listing filesets of %s: %w", fs, err)
	}
	filesets, rep := ParseFilesets(bytes.NewReader(out))
	return filesets, rep, nil
}

// FilesetByName runs mmlsfileset for a single named fileset and returns
// the first entry.
func FilesetByName(ctx context.Context, run Runner, fs, name string) (Fileset, error) {
	out, err := run.Run(ctx, "mmlsfileset", fs, name, "-Y")
	if err != nil {
		return Fileset{}, fmt.Errorf("fetching fileset %s of %s: %w", name, fs, err)
	}
	filesets, rep := ParseFilesets(bytes.NewReader(out))
	if err := rep.Err(); err != nil {
		return Fileset{}, err
	}
	if len(filesets) == 0 {
		return Fileset{}, fmt.Errorf("no fileset %s in %s", name, fs)
	}
	return filesets[0], nil
}

// ParseFilesets decodes mmlsfileset -Y output.
func ParseFilesets(r io.Reader) ([]Fileset, *Report) {
	var filesets []Fileset
	rep := scanRows(r, &filesetSchema, func(row ytab.BoundRow) error {
		maxInodes, err := row.Uint("maxInodes")
		if err != nil {
			return err
		}
		allocInodes, err := row.Uint("allocInodes")
		if err != nil {
			return err
		}
		filesets = append(filesets, Fileset{
			Filesystem:  row.String("filesystemName"),
			Name:        row.String("filesetName"),
			MaxInodes:   maxInodes,
			AllocInodes: allocInodes,
		})
		return nil
	})
	return filesets, rep
}
