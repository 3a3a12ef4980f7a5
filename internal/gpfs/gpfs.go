// Package gpfs decodes the output of the Spectrum Scale administrative
// commands into typed entities: disks, NSDs, capacity reports, pools,
// quotas, filesets, node states and managers.
//
// Each entity declares a ytab schema with the columns it reads. A row
// that fails to decode never aborts the rest of the blob; failures are
// collected in a Report and the caller decides whether they are fatal.
package gpfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// Runner executes one administrative command and returns its standard
// output. Implementations run on the local node or over SSH.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Report collects the rows of a blob that were not decoded: per-row
// failures in source order, and rows under sections this package has no
// schema for.
type Report struct {
	Errors  []error
	Skipped []SkippedRow
}

// SkippedRow marks a row under a section without a registered schema.
// Skipped rows are not errors; newer command versions may emit sections
// this package does not know about.
type SkippedRow struct {
	Line    int
	Section string
}

// Err joins all row failures into a single error, or returns nil when
// every row decoded.
func (r *Report) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return errors.Join(r.Errors...)
}

// Ok reports whether every row decoded.
func (r *Report) Ok() bool { return r == nil || len(r.Errors) == 0 }

// section couples a schema with the function that consumes its rows.
type section struct {
	schema *ytab.Schema
	row    func(ytab.BoundRow) error
}

// scan drives a ytab.Scanner over the blob, dispatching each data row
// to the section lookup decides on. Rows the lookup rejects are
// recorded as skipped. A header that cannot satisfy a schema is
// reported once and its rows are dropped.
func scan(r io.Reader, lookup func(string) (section, bool)) *Report {
	rep := &Report{}
	bindings := make(map[*ytab.Header]*ytab.Binding)

	s := ytab.NewScanner(r)
	for s.Scan() {
		it := s.Item()
		if it.Err != nil {
			rep.Errors = append(rep.Errors, it.Err)
			continue
		}
		sec, ok := lookup(it.Row.Header.Section)
		if !ok {
			rep.Skipped = append(rep.Skipped, SkippedRow{Line: it.Row.Line, Section: it.Row.Header.Section})
			continue
		}
		b, bound := bindings[it.Row.Header]
		if !bound {
			var err error
			b, err = sec.schema.Bind(it.Row.Header)
			if err != nil {
				rep.Errors = append(rep.Errors, err)
			}
			bindings[it.Row.Header] = b
		}
		if b == nil {
			continue
		}
		if err := sec.row(b.Row(it.Row)); err != nil {
			rep.Errors = append(rep.Errors, err)
		}
	}
	if err := s.Err(); err != nil {
		rep.Errors = append(rep.Errors, fmt.Errorf("reading command output: %w", err))
	}
	return rep
}

// scanSections dispatches rows by their section tag, for the commands
// that emit more than one table per blob.
func scanSections(r io.Reader, sections map[string]section) *Report {
	return scan(r, func(name string) (section, bool) {
		sec, ok := sections[name]
		return sec, ok
	})
}

// scanRows feeds every row to a single schema regardless of section
// tag. The single-table commands label their one section inconsistently
// across releases, so the tag carries no information there.
func scanRows(r io.Reader, schema *ytab.Schema, row func(ytab.BoundRow) error) *Report {
	sec := section{schema: schema, row: row}
	return scan(r, func(string) (section, bool) { return sec, true })
}
