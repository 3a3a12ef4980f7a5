package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mmlsfilesetFixture = `mmlsfileset::HEADER:version:reserved:reserved:filesystemName:filesetName:maxInodes:allocInodes:
mmlsfileset::0:1:::gpfs1:root:16000000:4000000:
mmlsfileset::0:1:::gpfs1:public:20971520:5251072:
mmlsfileset::0:1:::gpfs1:work:295313408:260063232:
`

func filesetRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{
		"mmlsfs all -Y -B":     mmlsfsOneOut,
		"mmlsfileset gpfs1 -Y": mmlsfilesetFixture,
	}}
}

func TestFilesetCollector_Collect(t *testing.T) {
	c, _, dir := newTestDeps(t)
	run := filesetRunner()
	col := NewFilesetCollector(FilesetConfig{PollInterval: time.Hour, TextfileDir: dir}, run, NewWorkerPool(4), c)

	assert.Equal(t, "gpfs:fileset", col.Name())
	assert.Equal(t, time.Hour, col.Interval())

	require.NoError(t, col.Collect(context.Background()))

	snap := c.Snapshot()
	require.Len(t, snap.Filesets["gpfs1"], 3)
	assert.Equal(t, "public", snap.Filesets["gpfs1"][1].Name)
	assert.Contains(t, snap.LastPoll, "gpfs:fileset")

	data, err := os.ReadFile(filepath.Join(dir, "gpfs_fileset.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `gpfs_fileset_max_inodes{fileset="work",fs="gpfs1"}`)
	assert.Contains(t, string(data), `gpfs_fileset_alloc_inodes{fileset="public",fs="gpfs1"}`)
}

func TestFilesetCollector_ListFailure(t *testing.T) {
	c, _, dir := newTestDeps(t)
	run := &fakeRunner{outputs: map[string]string{}}
	col := NewFilesetCollector(FilesetConfig{PollInterval: time.Hour, TextfileDir: dir}, run, NewWorkerPool(4), c)

	err := col.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing file systems")
}

func TestFilesetCollector_PerFsFailure(t *testing.T) {
	c, _, dir := newTestDeps(t)
	run := &fakeRunner{outputs: map[string]string{
		"mmlsfs all -Y -B": mmlsfsOneOut,
	}}
	col := NewFilesetCollector(FilesetConfig{PollInterval: time.Hour, TextfileDir: dir}, run, NewWorkerPool(4), c)

	require.NoError(t, col.Collect(context.Background()))
	assert.NotContains(t, c.Snapshot().Filesets, "gpfs1")
}
