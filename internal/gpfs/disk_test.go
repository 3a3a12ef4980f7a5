package gpfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsops/gpfsmon/internal/ytab"
)

const mmlsdiskOut = `mmlsdisk::HEADER:version:reserved:reserved:nsdName:driverType:sectorSize:failureGroup:metadata:data:status:availability:diskID:storagePool:remarks:
mmlsdisk::0:1:::disk1:nsd:512:1:yes:no:ready:up:1:system::
mmlsdisk::0:1:::disk2:nsd:512:2:no:yes:ready:down:2:data1::
mmlsdisk::0:1:::disk3:nsd:512:2:no:yes:suspended:up:3:data1::
mmlsdisk::0:1:::disk4:nsd:512:-1:no:yes:replacing:degraded:4:data1:desc:
`

func TestParseDisks(t *testing.T) {
	disks, rep := ParseDisks(strings.NewReader(mmlsdiskOut))
	require.NoError(t, rep.Err())
	require.Len(t, disks, 4)

	assert.Equal(t, Disk{
		Name:         "disk1",
		DriverType:   "nsd",
		SectorSize:   512,
		FailureGroup: "1",
		Metadata:     true,
		Data:         false,
		Status:       DiskStatusReady,
		Availability: AvailabilityUp,
		DiskID:       1,
		Pool:         "system",
	}, disks[0])

	assert.Equal(t, AvailabilityDown, disks[1].Availability)
	assert.Equal(t, "data1", disks[1].Pool)

	// Suspended is a status, not an availability: the disk stays up.
	assert.Equal(t, DiskStatusSuspended, disks[2].Status)
	assert.Equal(t, AvailabilityUp, disks[2].Availability)

	// States this package does not know stay raw instead of failing.
	assert.Equal(t, DiskStatus("replacing"), disks[3].Status)
	assert.False(t, disks[3].Status.Known())
	assert.Equal(t, Availability("degraded"), disks[3].Availability)
	assert.False(t, disks[3].Availability.Known())
	assert.False(t, disks[3].Availability.Healthy())
	assert.Equal(t, "-1", disks[3].FailureGroup)
	assert.Equal(t, "desc", disks[3].Remarks)
}

func TestParseDisksBadBool(t *testing.T) {
	blob := `mmlsdisk::HEADER:version:reserved:reserved:nsdName:metadata:data:availability:storagePool:
mmlsdisk::0:1:::disk1:maybe:yes:up:system:
mmlsdisk::0:1:::disk2:yes:yes:up:system:
`
	disks, rep := ParseDisks(strings.NewReader(blob))

	// The bad row is reported, the good row still decodes.
	require.Len(t, rep.Errors, 1)
	var derr *ytab.DecodeError
	require.ErrorAs(t, rep.Errors[0], &derr)
	assert.Equal(t, "disk", derr.Entity)
	assert.Equal(t, "metadata", derr.Column)

	require.Len(t, disks, 1)
	assert.Equal(t, "disk2", disks[0].Name)
}

func TestDisksCommandLine(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"mmlsdisk gpfs1 -Y": mmlsdiskOut,
	}}

	disks, rep, err := Disks(context.Background(), run, "gpfs1")
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Len(t, disks, 4)
	assert.Equal(t, []string{"mmlsdisk gpfs1 -Y"}, run.calls)
}

func TestDiskStatus(t *testing.T) {
	tests := []struct {
		in    string
		known bool
	}{
		{"ready", true},
		{"suspended", true},
		{"being emptied", true},
		{"to be emptied", true},
		{"replacing", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := ParseDiskStatus(tt.in)
			assert.Equal(t, tt.in, string(s))
			assert.Equal(t, tt.known, s.Known())
		})
	}
}

func TestAvailability(t *testing.T) {
	tests := []struct {
		in      string
		known   bool
		healthy bool
	}{
		{"up", true, true},
		{"down", true, false},
		{"recovering", true, false},
		{"unrecovered", true, false},
		{"suspended", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a := ParseAvailability(tt.in)
			assert.Equal(t, tt.in, string(a))
			assert.Equal(t, tt.known, a.Known())
			assert.Equal(t, tt.healthy, a.Healthy())
		})
	}
}
