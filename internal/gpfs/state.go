package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// NodeState is one mmgetstate row. State is kept verbatim; the daemon
// states of interest are "active", "down" and "arbitrating", but newer
// releases add more.
type NodeState struct {
	Node  string
	State string
}

// Active reports whether the node's daemon is up and serving.
func (s NodeState) Active() bool { return s.State == "active" }

var stateSchema = ytab.Schema{
	Entity: "state",
	Columns: []ytab.Column{
		{Name: "nodeName", Kind: ytab.String, Required: true},
		{Name: "state", Kind: ytab.String, Required: true},
	},
}

// States returns the daemon state of every node, via mmgetstate -a.
func States(ctx context.Context, run Runner) ([]NodeState, *Report, error) {
	out, err := run.Run(ctx, "mmgetstate", "-a", "-Y")
	if err != nil {
		return nil, nil, fmt.Errorf("fetching node states: %w", err)
	}
	states, rep := ParseStates(bytes.NewReader(out))
	return states, rep, nil
}

// LocalNodeName returns the cluster-internal name of the node this
// process runs on: the single row mmgetstate reports without -a.
func LocalNodeName(ctx context.Context, run Runner) (string, error) {
	out, err := run.Run(ctx, "mmgetstate", "-Y")
	if err != nil {
		return "", fmt.Errorf("fetching local node state: %w", err)
	}
	states, rep := ParseStates(bytes.NewReader(out))
	if err := rep.Err(); err != nil {
		return "", err
	}
	if len(states) == 0 {
		return "", fmt.Errorf("mmgetstate returned no local state")
	}
	return states[0].Node, nil
}

// ParseStates decodes mmgetstate -Y output.
func ParseStates(r io.Reader) ([]NodeState, *Report) {
	var states []NodeState
	rep := scanRows(r, &stateSchema, func(row ytab.BoundRow) error {
		states = append(states, NodeState{
			Node:  row.String("nodeName"),
			State: row.String("state"),
		})
		return nil
	})
	return states, rep
}
