package ytab

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mmlsfsBlob = `mmlsfs::HEADER:version:reserved:reserved:deviceName:fieldName:data:remarks:
mmlsfs::0:1:::gpfs1:minFragmentSize:8192::
mmlsfs::0:1:::gpfs1:blockSize:4194304::
mmlsfs::0:1:::gpfs2:minFragmentSize:8192::
`

func scanAll(t *testing.T, blob string) []Item {
	t.Helper()
	var items []Item
	s := NewScanner(strings.NewReader(blob))
	for s.Scan() {
		items = append(items, s.Item())
	}
	require.NoError(t, s.Err())
	return items
}

func TestScannerSingleSection(t *testing.T) {
	items := scanAll(t, mmlsfsBlob)
	require.Len(t, items, 3)

	for _, it := range items {
		require.NoError(t, it.Err)
		assert.Equal(t, "mmlsfs", it.Row.Header.Command)
		assert.Equal(t, "", it.Row.Header.Section)
	}

	dev, ok := items[0].Row.Field("deviceName")
	require.True(t, ok)
	assert.Equal(t, "gpfs1", dev)

	val, ok := items[1].Row.Field("data")
	require.True(t, ok)
	assert.Equal(t, "4194304", val)

	_, ok = items[0].Row.Field("noSuchColumn")
	assert.False(t, ok)
}

func TestScannerPreservesRawLines(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(mmlsfsBlob), "\n")
	items := scanAll(t, mmlsfsBlob)
	require.Len(t, items, 3)
	for i, it := range items {
		// Data rows start on line 2, after the header.
		assert.Equal(t, i+2, it.Row.Line)
		assert.Equal(t, lines[i+1], it.Row.Raw())
	}
}

func TestScannerMultipleSections(t *testing.T) {
	blob := `mmdf:nsd:HEADER:version:reserved:reserved:nsdName:storagePool:diskSize:failureGroup:metadata:data:freeBlocks:freeBlocksPct:freeFragments:freeFragmentsPct:
mmdf:nsd:0:1:::nsd1:system:1048576:1:yes:yes:524288:50:1024:0:
mmdf:nsd:0:1:::nsd2:data:2097152:2:no:yes:1048576:50:2048:0:
mmdf:poolTotal:HEADER:version:reserved:reserved:poolName:poolSize:freeBlocks:freeBlocksPct:freeFragments:freeFragmentsPct:maxDiskSize:
mmdf:poolTotal:0:1:::system:2097152:1048576:50:2048:0:4194304:
mmdf:fsTotal:HEADER:version:reserved:reserved:fsSize:freeBlocks:freeBlocksPct:freeFragments:freeFragmentsPct:
mmdf:fsTotal:0:1:::3145728:1572864:50:3072:0:
`
	items := scanAll(t, blob)
	require.Len(t, items, 4)

	sections := make([]string, 0, len(items))
	for _, it := range items {
		require.NoError(t, it.Err)
		sections = append(sections, it.Row.Header.Section)
	}
	assert.Equal(t, []string{"nsd", "nsd", "poolTotal", "fsTotal"}, sections)

	pool, ok := items[2].Row.Field("poolName")
	require.True(t, ok)
	assert.Equal(t, "system", pool)

	size, ok := items[3].Row.Field("fsSize")
	require.True(t, ok)
	assert.Equal(t, "3145728", size)
}

func TestScannerFieldCountMismatch(t *testing.T) {
	blob := `mmlsfs::HEADER:version:reserved:reserved:deviceName:fieldName:data:remarks:
mmlsfs::0:1:::gpfs1:blockSize:
`
	items := scanAll(t, blob)
	require.Len(t, items, 1)

	var ferr *FormatError
	require.ErrorAs(t, items[0].Err, &ferr)
	assert.Equal(t, 2, ferr.Line)
	assert.Contains(t, ferr.Reason, "does not match header")
}

func TestScannerDataRowBeforeHeader(t *testing.T) {
	blob := "mmlsfs::0:1:::gpfs1:blockSize:4194304:\n"
	items := scanAll(t, blob)
	require.Len(t, items, 1)

	var ferr *FormatError
	require.ErrorAs(t, items[0].Err, &ferr)
	assert.Equal(t, 1, ferr.Line)
}

func TestScannerBadLineDoesNotStopScan(t *testing.T) {
	blob := `mmlsfs::HEADER:version:reserved:reserved:deviceName:fieldName:data:remarks:
mmlsfs::0:1:::gpfs1:blockSize:
mmlsfs::0:1:::gpfs1:blockSize:4194304::
`
	items := scanAll(t, blob)
	require.Len(t, items, 2)
	assert.Error(t, items[0].Err)
	require.NoError(t, items[1].Err)

	val, ok := items[1].Row.Field("data")
	require.True(t, ok)
	assert.Equal(t, "4194304", val)
}

func TestScannerSkipsBannersAndBlankLines(t *testing.T) {
	blob := `*** Report for USR GRP quotas on gpfs1

mmrepquota::HEADER:version:reserved:reserved:filesystemName:quotaType:id:name:
mmrepquota::0:1:::gpfs1:USR:1000:alice:

*** Report for FILESET quotas on gpfs1
mmrepquota::0:1:::gpfs1:FILESET:1:projects:
`
	items := scanAll(t, blob)
	require.Len(t, items, 2)
	for _, it := range items {
		require.NoError(t, it.Err)
	}

	name, ok := items[1].Row.Field("name")
	require.True(t, ok)
	assert.Equal(t, "projects", name)
}

func TestScannerNotRestartable(t *testing.T) {
	s := NewScanner(strings.NewReader(mmlsfsBlob))
	n := 0
	for s.Scan() {
		n++
	}
	assert.Equal(t, 3, n)
	assert.False(t, s.Scan())
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "nsd1", "nsd1"},
		{"device path", "%2Fdev%2Fsda", "/dev/sda"},
		{"colon", "a%3Ab", "a:b"},
		{"uppercase hex", "%2Fdev%2FSDA", "/dev/SDA"},
		{"trailing percent", "100%", "100%"},
		{"bad hex preserved", "%zz", "%zz"},
		{"short tail preserved", "x%2", "x%2"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unescape(tt.in))
		})
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "nsd1", "nsd1"},
		{"device path", "/dev/sda", "/dev/sda"},
		{"colon", "a:b", "a%3Ab"},
		{"percent", "100%", "100%25"},
		{"escaped escape", "%3A", "%253A"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestScannerShortLine(t *testing.T) {
	items := scanAll(t, "garbage\n")
	require.Len(t, items, 1)

	var ferr *FormatError
	require.True(t, errors.As(items[0].Err, &ferr))
	assert.Equal(t, "garbage", ferr.Raw)
}

func FuzzScanner(f *testing.F) {
	f.Add(mmlsfsBlob)
	f.Add("mmlsfs::0:1:::gpfs1:blockSize:4194304:\n")
	f.Add("*** Report banner\n\nshort:line\n")
	f.Add("")
	f.Fuzz(func(t *testing.T, blob string) {
		s := NewScanner(strings.NewReader(blob))
		lastLine := 0
		for s.Scan() {
			item := s.Item()
			if item.Err != nil {
				var ferr *FormatError
				if !errors.As(item.Err, &ferr) {
					t.Fatalf("scan error is %T, want *FormatError", item.Err)
				}
				if ferr.Line <= lastLine {
					t.Fatalf("error line %d not after %d", ferr.Line, lastLine)
				}
				lastLine = ferr.Line
				continue
			}
			if item.Row.Header == nil {
				t.Fatal("data row without a governing header")
			}
			if item.Row.Line <= lastLine {
				t.Fatalf("row line %d not after %d", item.Row.Line, lastLine)
			}
			lastLine = item.Row.Line
		}
	})
}

func FuzzUnescape(f *testing.F) {
	f.Add("nsd1")
	f.Add("%2Fdev%2Fsda")
	f.Add("a%3Ab")
	f.Add("100%")
	f.Add("%zz")
	f.Add("")
	f.Fuzz(func(t *testing.T, s string) {
		out := Unescape(s)
		if len(out) > len(s) {
			t.Fatalf("unescape grew %q to %q", s, out)
		}
		if !strings.ContainsRune(s, '%') && out != s {
			t.Fatalf("escape-free input changed: %q to %q", s, out)
		}
	})
}

func FuzzEscape(f *testing.F) {
	f.Add("nsd1")
	f.Add("a:b")
	f.Add("100%")
	f.Add("%3A")
	f.Add("")
	f.Fuzz(func(t *testing.T, s string) {
		esc := Escape(s)
		if strings.ContainsRune(esc, ':') {
			t.Fatalf("escaped %q still contains the delimiter: %q", s, esc)
		}
		if out := Unescape(esc); out != s {
			t.Fatalf("round trip changed %q to %q", s, out)
		}
	})
}
