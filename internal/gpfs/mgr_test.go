package gpfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mmlsmgrOut = `mmlsmgr:clusterManager:HEADER:version:reserved:reserved:manager:
mmlsmgr:clusterManager:0:1:::filer1:
mmlsmgr:filesystemManager:HEADER:version:reserved:reserved:filesystem:manager:managerIP:
mmlsmgr:filesystemManager:0:1:::gpfs1:filer2:10.10.21.2:
mmlsmgr:filesystemManager:0:1:::gpfs2:filer3:10.10.21.3:
`

func TestParseManagers(t *testing.T) {
	m, rep := ParseManagers(strings.NewReader(mmlsmgrOut))
	require.NoError(t, rep.Err())

	assert.Equal(t, "filer1", m.Cluster)
	require.Len(t, m.Filesystems, 2)
	assert.Equal(t, FilesystemManager{
		Filesystem: "gpfs1",
		Node:       "filer2",
		IP:         "10.10.21.2",
	}, m.Filesystems[0])
	assert.Equal(t, "filer3", m.Filesystems[1].Node)
}

func TestClusterManagersCommandLine(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmlsmgr -Y": mmlsmgrOut,
	}}

	m, rep, err := ClusterManagers(context.Background(), run)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, "filer1", m.Cluster)
}
