package gpfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mmlsfilesetOut = `mmlsfileset::HEADER:version:reserved:reserved:filesystemName:filesetName:id:rootInode:status:path:parentId:created:inodes:dataInKB:comment:filesetMode:inodeSpace:isInodeSpaceOwner:maxInodes:allocInodes:
mmlsfileset::0:1:::gpfs1:root:0:3:Linked:%2Fgpfs%2Fgpfs1:--:Mon Jan 10 11%3A02%3A33 2022:4000000:0:root fileset:off:0:1:16000000:4000000:
mmlsfileset::0:1:::gpfs1:public:1:524291:Linked:%2Fgpfs%2Fgpfs1%2Fpublic:0:Mon Jan 10 11%3A30%3A00 2022:5251072:0::off:1:1:20971520:5251072:
mmlsfileset::0:1:::gpfs1:work:2:1048579:Linked:%2Fgpfs%2Fgpfs1%2Fwork:0:Tue Jan 11 09%3A12%3A45 2022:260063232:0::off:2:1:295313408:260063232:
`

func TestParseFilesets(t *testing.T) {
	filesets, rep := ParseFilesets(strings.NewReader(mmlsfilesetOut))
	require.NoError(t, rep.Err())
	require.Len(t, filesets, 3)

	assert.Equal(t, Fileset{
		Filesystem:  "gpfs1",
		Name:        "public",
		MaxInodes:   20971520,
		AllocInodes: 5251072,
	}, filesets[1])

	assert.Equal(t, uint64(295313408), filesets[2].MaxInodes)
}

func TestFilesetsCommandLine(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmlsfileset gpfs1 -Y": mmlsfilesetOut,
	}}

	filesets, rep, err := Filesets(context.Background(), run, "gpfs1")
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Len(t, filesets, 3)
}

func TestFilesetByName(t *testing.T) {
	single := `mmlsfileset::HEADER:version:reserved:reserved:filesystemName:filesetName:maxInodes:allocInodes:
mmlsfileset::0:1:::gpfs1:work:295313408:260063232:
`
	run := &fakeRunner{outputs: map[string]string{
		"mmlsfileset gpfs1 work -Y": single,
	}}

	fset, err := FilesetByName(context.Background(), run, "gpfs1", "work")
	require.NoError(t, err)
	assert.Equal(t, "work", fset.Name)
	assert.Equal(t, uint64(260063232), fset.AllocInodes)
}

func TestFilesetByNameMissing(t *testing.T) {
	empty := `mmlsfileset::HEADER:version:reserved:reserved:filesystemName:filesetName:maxInodes:allocInodes:
`
	run := &fakeRunner{outputs: map[string]string{
		"mmlsfileset gpfs1 nope -Y": empty,
	}}

	_, err := FilesetByName(context.Background(), run, "gpfs1", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fileset")
}
