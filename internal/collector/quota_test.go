package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsops/gpfsmon/internal/gpfs"
)

const mmrepquotaFixture = `*** Report for USR GRP FILESET quotas on gpfs1
mmrepquota::HEADER:version:reserved:reserved:filesystemName:quotaType:id:name:blockUsage:blockQuota:blockLimit:blockInDoubt:blockGrace:filesUsage:filesQuota:filesLimit:filesInDoubt:filesGrace:remarks:quota:defQuota:fid:filesetname:
mmrepquota::0:1:::gpfs1:FILESET:1:projects:950235440:4294967296:5368709120:406372448:none:553624:5000000:20000000:0:none:e:on:off:::
mmrepquota::0:1:::gpfs1:USR:62347:alice:455894288:419430400:524288000:0:6days:25738:0:0:0:none:e:on:off::fileset1:
`

func quotaRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{
		"mmlsfs all -Y -B":             mmlsfsTwoOut,
		"mmrepquota -u -g -j gpfs1 -Y": mmrepquotaFixture,
		"mmrepquota -u -g -j gpfs2 -Y": mmrepquotaFixture,
	}}
}

func TestQuotaCollector_Collect(t *testing.T) {
	c, s, dir := newTestDeps(t)
	run := quotaRunner()
	col := NewQuotaCollector(QuotaConfig{PollInterval: time.Hour, TextfileDir: dir}, run, NewWorkerPool(4), c, s)

	assert.Equal(t, "gpfs:quota", col.Name())

	require.NoError(t, col.Collect(context.Background()))

	snap := c.Snapshot()
	require.Len(t, snap.Quotas["gpfs1"], 2)
	assert.Equal(t, gpfs.QuotaFileset, snap.Quotas["gpfs1"][0].Kind)
	assert.Contains(t, snap.LastPoll, "gpfs:quota")

	points, err := s.QueryQuotaHistory("gpfs1", "FILESET", "projects", "", 0, time.Second)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, float64(950235440)*1024, points[0].BlockUsageBytes, 1)

	data, err := os.ReadFile(filepath.Join(dir, "gpfs_quota.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `gpfs_quota_block_usage_bytes{fileset="",fs="gpfs1",id="1",name="projects",type="FILESET"}`)
	assert.Contains(t, string(data), `gpfs_quota_files_usage{fileset="fileset1",fs="gpfs1",id="62347",name="alice",type="USR"}`)
}

func TestQuotaCollector_PartialFailure(t *testing.T) {
	c, s, dir := newTestDeps(t)
	run := quotaRunner()
	delete(run.outputs, "mmrepquota -u -g -j gpfs2 -Y")
	col := NewQuotaCollector(QuotaConfig{PollInterval: time.Hour, TextfileDir: dir}, run, NewWorkerPool(4), c, s)

	require.NoError(t, col.Collect(context.Background()))

	snap := c.Snapshot()
	assert.Contains(t, snap.Quotas, "gpfs1")
	assert.NotContains(t, snap.Quotas, "gpfs2")
}

func TestQuotaCollector_ListFailure(t *testing.T) {
	c, s, dir := newTestDeps(t)
	run := &fakeRunner{outputs: map[string]string{}}
	col := NewQuotaCollector(QuotaConfig{PollInterval: time.Hour, TextfileDir: dir}, run, NewWorkerPool(4), c, s)

	err := col.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing file systems")
}
