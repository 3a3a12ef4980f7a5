package gpfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mmgetstateAllOut = `mmgetstate::HEADER:version:reserved:reserved:nodeName:nodeNumber:state:quorum:nodesUp:totalNodes:remarks:cnfsState:
mmgetstate::0:1:::filer1:1:active:2:3:3:quorum node:(undefined):
mmgetstate::0:1:::filer2:2:active:2:3:3:quorum node:(undefined):
mmgetstate::0:1:::filer3:3:down:2:3:3::(undefined):
`

func TestParseStates(t *testing.T) {
	states, rep := ParseStates(strings.NewReader(mmgetstateAllOut))
	require.NoError(t, rep.Err())
	require.Len(t, states, 3)

	assert.Equal(t, NodeState{Node: "filer1", State: "active"}, states[0])
	assert.True(t, states[0].Active())
	assert.Equal(t, NodeState{Node: "filer3", State: "down"}, states[2])
	assert.False(t, states[2].Active())
}

func TestStatesCommandLine(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmgetstate -a -Y": mmgetstateAllOut,
	}}

	states, rep, err := States(context.Background(), run)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Len(t, states, 3)
}

func TestLocalNodeName(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmgetstate -Y": mmgetstateLocalOut,
	}}

	name, err := LocalNodeName(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "filer1", name)
}

func TestLocalNodeNameEmptyOutput(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmgetstate -Y": "",
	}}

	_, err := LocalNodeName(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no local state")
}
