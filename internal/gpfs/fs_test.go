package gpfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mmlsfsOut = `mmlsfs::HEADER:version:reserved:reserved:deviceName:fieldName:data:remarks:
mmlsfs::0:1:::gpfs1:blockSize:4194304::
mmlsfs::0:1:::gpfs2:blockSize:1048576::
`

func TestParseFilesystemNames(t *testing.T) {
	names, rep := ParseFilesystemNames(strings.NewReader(mmlsfsOut))
	require.NoError(t, rep.Err())
	assert.Equal(t, []string{"gpfs1", "gpfs2"}, names)
}

func TestParseFilesystemNamesDeduplicates(t *testing.T) {
	blob := mmlsfsOut + "mmlsfs::0:1:::gpfs1:minFragmentSize:8192::\n"
	names, rep := ParseFilesystemNames(strings.NewReader(blob))
	require.NoError(t, rep.Err())
	assert.Equal(t, []string{"gpfs1", "gpfs2"}, names)
}

func TestFilesystemNamesCommandLine(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmlsfs all -Y -B": mmlsfsOut,
	}}

	names, rep, err := FilesystemNames(context.Background(), run)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, []string{"gpfs1", "gpfs2"}, names)
	assert.Equal(t, []string{"mmlsfs all -Y -B"}, run.calls)
}
