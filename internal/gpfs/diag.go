package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// Deadlock lists the nodes mmdiag currently flags as part of a waiter
// deadlock. An empty list is the healthy case.
type Deadlock struct {
	Nodes []string
}

// Count returns the number of deadlocked nodes.
func (d Deadlock) Count() int { return len(d.Nodes) }

var deadlockSchema = ytab.Schema{
	Entity: "deadlock",
	Columns: []ytab.Column{
		{Name: "nodeList", Kind: ytab.String, Required: true},
	},
}

// Deadlocks runs mmdiag --deadlock.
func Deadlocks(ctx context.Context, run Runner) (Deadlock, *Report, error) {
	out, err := run.Run(ctx, "mmdiag", "--deadlock", "-Y")
	if err != nil {
		return Deadlock{}, nil, fmt.Errorf("fetching deadlock state: %w", err)
	}
	d, rep := ParseDeadlocks(bytes.NewReader(out))
	return d, rep, nil
}

// ParseDeadlocks decodes mmdiag --deadlock -Y output. Only the
// deadlockNodes section matters; mmdiag emits several others that are
// skipped.
func ParseDeadlocks(r io.Reader) (Deadlock, *Report) {
	var d Deadlock
	rep := scanSections(r, map[string]section{
		"deadlockNodes": {schema: &deadlockSchema, row: func(row ytab.BoundRow) error {
			d.Nodes = append(d.Nodes, row.String("nodeList"))
			return nil
		}},
	})
	return d, rep
}
