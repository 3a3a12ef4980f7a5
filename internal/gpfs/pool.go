package gpfs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PoolSize is the capacity of one side of a storage pool, either its
// object data or its metadata.
type PoolSize struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// UsedPercent returns the used share of the pool, rounded down.
func (s PoolSize) UsedPercent() uint64 {
	if s.TotalBytes == 0 || s.FreeBytes >= s.TotalBytes {
		return 0
	}
	return (s.TotalBytes - s.FreeBytes) * 100 / s.TotalBytes
}

// Pool is one storage pool of a file system as mmlspool reports it.
// Data and Meta are nil for pools that do not hold that kind.
type Pool struct {
	Name string
	Data *PoolSize
	Meta *PoolSize
}

// Pools runs mmlspool for one file system. Unlike the other commands
// mmlspool has no -Y mode; its human-readable table is parsed by
// position.
func Pools(ctx context.Context, run Runner, fs string) ([]Pool, error) {
	out, err := run.Run(ctx, "mmlspool", fs)
	if err != nil {
		return nil, fmt.Errorf("listing pools of %s: %w", fs, err)
	}
	pools, err := ParsePools(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("parsing pools of %s: %w", fs, err)
	}
	return pools, nil
}

// ParsePools decodes the columnar mmlspool output. The first two lines
// are the banner and the column headings.
func ParsePools(r io.Reader) ([]Pool, error) {
	var pools []Pool
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if line <= 2 || strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		pool, err := parsePoolLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pools = append(pools, pool)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading command output: %w", err)
	}
	return pools, nil
}

// parsePoolLine splits one pool row on whitespace. The fixed layout is
// name, id, block size (two tokens, count and unit), a data flag and a
// meta flag, then total/free pairs. The free column appends a
// percentage like "( 80%)" which, when present after the data pair,
// shifts the meta columns right by one.
func parsePoolLine(s string) (Pool, error) {
	tokens := strings.Fields(s)
	if len(tokens) < 6 {
		return Pool{}, fmt.Errorf("unexpected pool line %q", s)
	}
	pool := Pool{Name: tokens[0]}

	if tokens[4] == "yes" {
		size, err := poolSizeAt(tokens, 6, 7)
		if err != nil {
			return Pool{}, fmt.Errorf("data size of pool %s: %w", pool.Name, err)
		}
		pool.Data = &size
	}
	if tokens[5] == "yes" {
		total, free := 9, 10
		if len(tokens) > 8 && tokens[8] == "(" {
			total, free = 10, 11
		}
		size, err := poolSizeAt(tokens, total, free)
		if err != nil {
			return Pool{}, fmt.Errorf("meta size of pool %s: %w", pool.Name, err)
		}
		pool.Meta = &size
	}
	if pool.Data == nil && pool.Meta == nil {
		return Pool{}, fmt.Errorf("pool %s holds neither data nor metadata", pool.Name)
	}
	return pool, nil
}

func poolSizeAt(tokens []string, total, free int) (PoolSize, error) {
	if len(tokens) <= free {
		return PoolSize{}, fmt.Errorf("too few columns")
	}
	totalKB, err := strconv.ParseUint(tokens[total], 10, 64)
	if err != nil {
		return PoolSize{}, fmt.Errorf("total %q: %w", tokens[total], err)
	}
	freeKB, err := strconv.ParseUint(tokens[free], 10, 64)
	if err != nil {
		return PoolSize{}, fmt.Errorf("free %q: %w", tokens[free], err)
	}
	return PoolSize{TotalBytes: totalKB * 1024, FreeBytes: freeKB * 1024}, nil
}
