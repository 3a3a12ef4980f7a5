package gpfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// QuotaKind is the subject a quota entry applies to. Unlike disk
// availability, an unknown kind fails the decode: every consumer
// branches on it.
type QuotaKind string

const (
	QuotaUser    QuotaKind = "USR"
	QuotaGroup   QuotaKind = "GRP"
	QuotaFileset QuotaKind = "FILESET"
)

func parseQuotaKind(row ytab.BoundRow, col string) (QuotaKind, error) {
	switch s := row.String(col); QuotaKind(s) {
	case QuotaUser, QuotaGroup, QuotaFileset:
		return QuotaKind(s), nil
	default:
		return "", &ytab.DecodeError{
			Entity: "quota",
			Column: col,
			Line:   row.Line(),
			Value:  s,
			Reason: "unknown quota type",
		}
	}
}

// QuotaEntry is one mmrepquota row. Block values are byte counts; files
// values are inode counts. Usage can go negative while the quota server
// reconciles in-doubt space freed on other nodes.
type QuotaEntry struct {
	Filesystem string
	Kind       QuotaKind
	ID         uint64
	Name       string

	BlockUsageBytes   int64
	BlockQuotaBytes   uint64
	BlockLimitBytes   uint64
	BlockInDoubtBytes uint64
	BlockGrace        ytab.GracePeriod

	FilesUsage   int64
	FilesQuota   uint64
	FilesLimit   uint64
	FilesInDoubt uint64
	FilesGrace   ytab.GracePeriod

	// Fileset the entry is scoped to, for per-fileset user and group
	// quotas. Empty when quotas are filesystem-wide.
	Fileset string
}

// SoftBlockExceeded reports whether block usage is over the soft quota.
func (e QuotaEntry) SoftBlockExceeded() bool {
	return e.BlockQuotaBytes > 0 && e.BlockUsageBytes > 0 && uint64(e.BlockUsageBytes) > e.BlockQuotaBytes
}

var quotaSchema = ytab.Schema{
	Entity: "quota",
	Columns: []ytab.Column{
		{Name: "filesystemName", Kind: ytab.String, Required: true},
		{Name: "quotaType", Kind: ytab.String, Required: true},
		{Name: "id", Kind: ytab.Uint, Required: true},
		{Name: "name", Kind: ytab.String, Required: true},
		{Name: "blockUsage", Kind: ytab.SizeInt, Required: true},
		{Name: "blockQuota", Kind: ytab.Size, Required: true},
		{Name: "blockLimit", Kind: ytab.Size, Required: true},
		{Name: "blockInDoubt", Kind: ytab.Size, Required: true},
		{Name: "blockGrace", Kind: ytab.Grace, Required: false},
		{Name: "filesUsage", Kind: ytab.Int, Required: true},
		{Name: "filesQuota", Kind: ytab.Uint, Required: true},
		{Name: "filesLimit", Kind: ytab.Uint, Required: true},
		{Name: "filesInDoubt", Kind: ytab.Uint, Required: true},
		{Name: "filesGrace", Kind: ytab.Grace, Required: false},
		{Name: "filesetname", Kind: ytab.String, Required: false},
	},
}

// Quotas runs mmrepquota for one file system, reporting user, group and
// fileset quotas in one pass.
func Quotas(ctx context.Context, run Runner, fs string) ([]QuotaEntry, *Report, error) {
	out, err := run.Run(ctx, "mmrepquota", "-u", "-g", "-j", fs, "-Y")
	if err != nil {
		return nil, nil, fmt.Errorf("fetching quotas of %s: %w", fs, err)
	}
	entries, rep := ParseQuotas(bytes.NewReader(out))
	return entries, rep, nil
}

// ParseQuotas decodes mmrepquota -Y output.
func ParseQuotas(r io.Reader) ([]QuotaEntry, *Report) {
	var entries []QuotaEntry
	rep := scanRows(r, &quotaSchema, func(row ytab.BoundRow) error {
		e, err := decodeQuota(row)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, rep
}

func decodeQuota(row ytab.BoundRow) (QuotaEntry, error) {
	var e QuotaEntry
	var err error

	e.Filesystem = row.String("filesystemName")
	if e.Kind, err = parseQuotaKind(row, "quotaType"); err != nil {
		return QuotaEntry{}, err
	}
	if e.ID, err = row.Uint("id"); err != nil {
		return QuotaEntry{}, err
	}
	e.Name = row.String("name")

	if e.BlockUsageBytes, err = row.SizeInt("blockUsage"); err != nil {
		return QuotaEntry{}, err
	}
	if e.BlockQuotaBytes, err = row.Size("blockQuota"); err != nil {
		return QuotaEntry{}, err
	}
	if e.BlockLimitBytes, err = row.Size("blockLimit"); err != nil {
		return QuotaEntry{}, err
	}
	if e.BlockInDoubtBytes, err = row.Size("blockInDoubt"); err != nil {
		return QuotaEntry{}, err
	}
	if row.Has("blockGrace") {
		if e.BlockGrace, err = row.Grace("blockGrace"); err != nil {
			return QuotaEntry{}, err
		}
	}

	if e.FilesUsage, err = row.Int("filesUsage"); err != nil {
		return QuotaEntry{}, err
	}
	if e.FilesQuota, err = row.Uint("filesQuota"); err != nil {
		return QuotaEntry{}, err
	}
	if e.FilesLimit, err = row.Uint("filesLimit"); err != nil {
		return QuotaEntry{}, err
	}
	if e.FilesInDoubt, err = row.Uint("filesInDoubt"); err != nil {
		return QuotaEntry{}, err
	}
	if row.Has("filesGrace") {
		if e.FilesGrace, err = row.Grace("filesGrace"); err != nil {
			return QuotaEntry{}, err
		}
	}

	e.Fileset = row.String("filesetname")
	return e, nil
}
