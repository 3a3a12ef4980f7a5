// Package mmcmd executes Spectrum Scale administrative commands, either
// directly on a cluster node or over SSH from a monitoring host.
package mmcmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultBinDir is where Spectrum Scale installs its administrative
// commands.
const DefaultBinDir = "/usr/lpp/mmfs/bin"

// Local runs commands on this node.
type Local struct {
	// BinDir is the directory holding the mm* commands. Empty means
	// DefaultBinDir.
	BinDir string
}

// Run executes one command and returns its standard output. Standard
// error ends up in the returned error on failure.
func (l Local) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	dir := l.BinDir
	if dir == "" {
		dir = DefaultBinDir
	}

	cmd := exec.CommandContext(ctx, filepath.Join(dir, name), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("running %s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// quoteArg wraps an argument in single quotes for the remote shell when
// it contains anything beyond the characters mm* arguments normally
// use.
func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$`&|;<>(){}*?#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
