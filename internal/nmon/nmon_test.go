package nmon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsops/gpfsmon/internal/poolio"
)

var testGroups = []poolio.Group{
	{
		Filesystem:       "gpfs1",
		Pool:             "data",
		Devices:          []string{"dm-2", "dm-3"},
		ReadBytesPerSec:  125829120,
		WriteBytesPerSec: 262144,
	},
	{
		Filesystem: "gpfs1",
		Pool:       "system",
		Devices:    []string{"dm-1"},
	},
}

func TestFormatGroups(t *testing.T) {
	want := "gpfs1-data dm-2 dm-3\ngpfs1-system dm-1\n"
	assert.Equal(t, want, FormatGroups(testGroups))
}

func TestFormatGroupsEmpty(t *testing.T) {
	assert.Equal(t, "", FormatGroups(nil))
}

func TestFormatRates(t *testing.T) {
	want := "gpfs1-data 125829120 262144\ngpfs1-system 0 0\n"
	assert.Equal(t, want, FormatRates(testGroups))
}

func TestWriteGroupsCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "gpfsmon", "nmon-groups")

	require.NoError(t, WriteGroups(path, testGroups))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, FormatGroups(testGroups), string(data))
}

func TestWriteRatesReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nmon-rates")
	require.NoError(t, WriteRates(path, testGroups))
	require.NoError(t, WriteRates(path, testGroups[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, FormatRates(testGroups[:1]), string(data))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteGroups(filepath.Join(dir, "nmon-groups"), testGroups))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "nmon-groups", entries[0].Name())
}

type fakeSource struct {
	snap *poolio.Snapshot
}

func (f *fakeSource) Current() *poolio.Snapshot { return f.snap }

func TestFeederWritesBothFeeds(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{snap: &poolio.Snapshot{
		Groups: testGroups,
		Taken:  time.Now(),
	}}

	f := NewFeeder(FeederConfig{
		Source:    src,
		GroupFile: filepath.Join(dir, "groups"),
		RatesFile: filepath.Join(dir, "rates"),
	})

	f.cycle()

	groups, err := os.ReadFile(filepath.Join(dir, "groups"))
	require.NoError(t, err)
	assert.Equal(t, FormatGroups(testGroups), string(groups))

	rates, err := os.ReadFile(filepath.Join(dir, "rates"))
	require.NoError(t, err)
	assert.Equal(t, FormatRates(testGroups), string(rates))
}

func TestFeederSkipsStaleSnapshot(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{snap: &poolio.Snapshot{
		Groups: testGroups,
		Taken:  time.Now(),
		Stale:  true,
	}}

	f := NewFeeder(FeederConfig{
		Source:    src,
		GroupFile: filepath.Join(dir, "groups"),
		RatesFile: filepath.Join(dir, "rates"),
	})

	f.cycle()

	_, err := os.Stat(filepath.Join(dir, "groups"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "rates"))
	assert.True(t, os.IsNotExist(err))
}

func TestFeederSkipsUnpopulatedSnapshot(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{snap: &poolio.Snapshot{}}

	f := NewFeeder(FeederConfig{
		Source:    src,
		GroupFile: filepath.Join(dir, "groups"),
		RatesFile: filepath.Join(dir, "rates"),
	})

	f.cycle()

	_, err := os.Stat(filepath.Join(dir, "groups"))
	assert.True(t, os.IsNotExist(err))
}

func TestFeederRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{snap: &poolio.Snapshot{Groups: testGroups, Taken: time.Now()}}

	f := NewFeeder(FeederConfig{
		Source:    src,
		GroupFile: filepath.Join(dir, "groups"),
		RatesFile: filepath.Join(dir, "rates"),
		Interval:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The immediate cycle ran before the loop observed cancellation.
	_, statErr := os.Stat(filepath.Join(dir, "groups"))
	assert.NoError(t, statErr)
}
