package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"github.com/fsops/gpfsmon/internal/store"
)

var (
	dbFlag = cli.StringFlag{
		Name:  "db",
		Usage: "path of the metric history database",
		Value: "/var/lib/gpfsmon/gpfsmon.db",
	}
	sinceFlag = cli.DurationFlag{
		Name:  "since",
		Usage: "how far back to query",
		Value: 24 * time.Hour,
	}
	bucketFlag = cli.DurationFlag{
		Name:  "bucket",
		Usage: "averaging bucket width",
		Value: 5 * time.Minute,
	}
	limitFlag = cli.IntFlag{
		Name:  "limit",
		Usage: "maximum number of rows",
		Value: 50,
	}
	filesetFlag = cli.StringFlag{
		Name:  "fileset",
		Usage: "fileset the quota entry is scoped to",
	}
)

func historyCommand() cli.Command {
	return cli.Command{
		Name:  "history",
		Usage: "query metric history recorded by the daemon",
		Subcommands: []cli.Command{
			{
				Name:      "fs",
				Usage:     "capacity history of a filesystem",
				ArgsUsage: "FILESYSTEM",
				Flags:     []cli.Flag{dbFlag, sinceFlag, bucketFlag},
				Action:    runHistoryFs,
			},
			{
				Name:      "pool",
				Usage:     "capacity history of a storage pool",
				ArgsUsage: "FILESYSTEM POOL",
				Flags:     []cli.Flag{dbFlag, sinceFlag, bucketFlag},
				Action:    runHistoryPool,
			},
			{
				Name:      "poolio",
				Usage:     "throughput history of a storage pool",
				ArgsUsage: "FILESYSTEM POOL",
				Flags:     []cli.Flag{dbFlag, sinceFlag, bucketFlag},
				Action:    runHistoryPoolIO,
			},
			{
				Name:      "quota",
				Usage:     "usage history of a quota entry",
				ArgsUsage: "FILESYSTEM KIND NAME",
				Flags:     []cli.Flag{dbFlag, sinceFlag, bucketFlag, filesetFlag},
				Action:    runHistoryQuota,
			},
			{
				Name:   "alerts",
				Usage:  "recently fired alerts",
				Flags:  []cli.Flag{dbFlag, sinceFlag, limitFlag},
				Action: runHistoryAlerts,
			},
		},
	}
}

// openStore opens the daemon's database for querying. A missing file
// is an error here, not a fresh empty database.
func openStore(c *cli.Context) (*store.Store, error) {
	path := c.String("db")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("history database %s: %w", path, err)
	}
	return store.New(path)
}

func sinceUnix(c *cli.Context) int64 {
	return time.Now().Add(-c.Duration("since")).Unix()
}

func runHistoryFs(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("history fs needs a filesystem name")
	}
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()
	points, err := st.QueryFsHistory(c.Args().First(), sinceUnix(c), c.Duration("bucket"))
	if err != nil {
		return err
	}
	return printCapacityPoints(points)
}

func runHistoryPool(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("history pool needs a filesystem and a pool name")
	}
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()
	points, err := st.QueryPoolHistory(c.Args().Get(0), c.Args().Get(1), sinceUnix(c), c.Duration("bucket"))
	if err != nil {
		return err
	}
	return printCapacityPoints(points)
}

func printCapacityPoints(points []store.CapacityPoint) error {
	tw := &tabwriter.Writer{}
	tw.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOTAL\tFREE\tUSED%")
	for _, p := range points {
		usedPct := 0.0
		if p.TotalBytes > 0 {
			usedPct = (p.TotalBytes - p.FreeBytes) / p.TotalBytes * 100
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\n",
			timeString(p.Timestamp),
			sizeString(int64(p.TotalBytes)),
			sizeString(int64(p.FreeBytes)),
			usedPct)
	}
	return tw.Flush()
}

func runHistoryPoolIO(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("history poolio needs a filesystem and a pool name")
	}
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()
	points, err := st.QueryPoolIOHistory(c.Args().Get(0), c.Args().Get(1), sinceUnix(c), c.Duration("bucket"))
	if err != nil {
		return err
	}
	tw := &tabwriter.Writer{}
	tw.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREAD\tWRITE")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			timeString(p.Timestamp),
			rateString(p.ReadBytesPerSec),
			rateString(p.WriteBytesPerSec))
	}
	return tw.Flush()
}

func runHistoryQuota(c *cli.Context) error {
	if c.NArg() != 3 {
		return fmt.Errorf("history quota needs a filesystem, a kind, and a name")
	}
	kind := strings.ToUpper(c.Args().Get(1))
	switch kind {
	case "USR", "GRP", "FILESET":
	default:
		return fmt.Errorf("unknown quota kind %q (expected USR, GRP, or FILESET)", c.Args().Get(1))
	}
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()
	points, err := st.QueryQuotaHistory(
		c.Args().Get(0), kind, c.Args().Get(2), c.String("fileset"),
		sinceUnix(c), c.Duration("bucket"))
	if err != nil {
		return err
	}
	tw := &tabwriter.Writer{}
	tw.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tUSED\tHARD\tFILES")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\n",
			timeString(p.Timestamp),
			sizeString(int64(p.BlockUsageBytes)),
			limitString(uint64(p.BlockLimitBytes)),
			p.FilesUsage)
	}
	return tw.Flush()
}

func runHistoryAlerts(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()
	alerts, err := st.QueryRecentAlerts(sinceUnix(c), c.Int("limit"))
	if err != nil {
		return err
	}
	tw := &tabwriter.Writer{}
	tw.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSEVERITY\tRULE\tSUBJECT\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			timeString(a.Timestamp), a.Severity, a.Rule, a.Subject, a.Message)
	}
	return tw.Flush()
}
