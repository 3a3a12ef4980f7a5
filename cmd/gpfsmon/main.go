package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/urfave/cli"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/mmcmd"
	"github.com/fsops/gpfsmon/internal/poolio"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// buildInfo returns version, commit, build time, and VCS details from the
// embedded Go build info. ldflags-injected values take priority; VCS info
// from debug.ReadBuildInfo fills in anything left as default.
func buildInfo() (ver, sha, built, dirty string) {
	ver = version
	sha = commit
	built = buildTime
	dirty = "clean"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if sha == "none" {
				sha = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "dirty"
			}
		}
	}

	return
}

// Flags shared between the one-shot subcommands.
var (
	binDirFlag = cli.StringFlag{
		Name:  "bin-dir",
		Usage: "directory holding the GPFS administrative commands",
		Value: mmcmd.DefaultBinDir,
	}
	deviceCacheFlag = cli.StringFlag{
		Name:  "device-cache",
		Usage: "path of the local NSD device cache file",
		Value: poolio.DefaultDeviceCache,
	}
	forceFlag = cli.BoolFlag{
		Name:  "force",
		Usage: "rebuild the device cache even if it exists",
	}
	outputFlag = cli.StringFlag{
		Name:  "output, o",
		Usage: "write to this file instead of stdout",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	ver, sha, built, dirty := buildInfo()

	cli.VersionPrinter = func(*cli.Context) {
		fmt.Printf("gpfsmon %s\n  commit:    %s (%s)\n  built:     %s\n  go:        %s\n  platform:  %s/%s\n",
			ver, sha, dirty, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}

	app := cli.NewApp()
	app.Name = "gpfsmon"
	app.Usage = "GPFS cluster monitoring daemon and reporting CLI"
	app.Version = ver
	app.Commands = []cli.Command{
		serveCommand(),
		cacheCommand(),
		listCommand(),
		poolCommand(),
		quotaCommand(),
		prometheusCommand(),
		historyCommand(),
	}
	return app
}

// newRunner builds the local command runner for one-shot subcommands.
// Remote execution is a daemon concern; the one-shots always run on
// this node, like the commands they wrap.
func newRunner(c *cli.Context) gpfs.Runner {
	return mmcmd.Local{BinDir: c.String("bin-dir")}
}

// rootContext returns a context cancelled on SIGINT or SIGTERM.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printReport writes per-row decode failures to stderr. Rows that did
// decode are still printed by the caller; a partial report degrades the
// output instead of discarding it.
func printReport(source string, rep *gpfs.Report) {
	if rep == nil {
		return
	}
	for _, err := range rep.Errors {
		fmt.Fprintf(os.Stderr, "%s: %v\n", source, err)
	}
}
