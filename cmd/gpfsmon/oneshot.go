package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/nmon"
	"github.com/fsops/gpfsmon/internal/poolio"
)

func cacheCommand() cli.Command {
	return cli.Command{
		Name:  "cache",
		Usage: "refresh the on-disk caches behind pool throughput sampling",
		Subcommands: []cli.Command{
			{
				Name:   "nsds",
				Usage:  "map local NSDs to block devices and cache the result",
				Flags:  []cli.Flag{binDirFlag, deviceCacheFlag, forceFlag},
				Action: runCacheNSDs,
			},
			{
				Name:   "nmon",
				Usage:  "write pool device groups in nmon DGROUP syntax",
				Flags:  []cli.Flag{binDirFlag, deviceCacheFlag, forceFlag, outputFlag},
				Action: runCacheNmon,
			},
		},
	}
}

func runCacheNSDs(c *cli.Context) error {
	ctx, stop := rootContext()
	defer stop()
	_, err := poolio.LocalNSDs(ctx, newRunner(c), c.String("device-cache"), c.Bool("force"))
	return err
}

func runCacheNmon(c *cli.Context) error {
	ctx, stop := rootContext()
	defer stop()
	topo, err := poolio.ResolveTopology(ctx, newRunner(c), c.String("device-cache"), c.Bool("force"))
	if err != nil {
		return err
	}
	groups := topo.GroupList()
	if out := c.String("output"); out != "" {
		return nmon.WriteGroups(out, groups)
	}
	_, err = io.WriteString(os.Stdout, nmon.FormatGroups(groups))
	return err
}

func listCommand() cli.Command {
	return cli.Command{
		Name:  "list",
		Usage: "list filesystems, manager nodes, and daemon states",
		Subcommands: []cli.Command{
			{
				Name:   "filesystems",
				Usage:  "print the name of every GPFS filesystem",
				Flags:  []cli.Flag{binDirFlag},
				Action: runListFilesystems,
			},
			{
				Name:  "manager",
				Usage: "print cluster and filesystem manager assignments",
				Subcommands: []cli.Command{
					{
						Name:   "cluster",
						Usage:  "print the cluster manager node",
						Flags:  []cli.Flag{binDirFlag},
						Action: runListManagerCluster,
					},
					{
						Name:   "filesystems",
						Usage:  "print the manager node of every filesystem",
						Flags:  []cli.Flag{binDirFlag},
						Action: runListManagerFilesystems,
					},
				},
			},
			{
				Name:   "state",
				Usage:  "print the GPFS daemon state of every node",
				Flags:  []cli.Flag{binDirFlag},
				Action: runListState,
			},
		},
	}
}

func runListFilesystems(c *cli.Context) error {
	ctx, stop := rootContext()
	defer stop()
	names, rep, err := gpfs.FilesystemNames(ctx, newRunner(c))
	if err != nil {
		return err
	}
	printReport("mmlsfs", rep)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runListManagerCluster(c *cli.Context) error {
	ctx, stop := rootContext()
	defer stop()
	mgrs, rep, err := gpfs.ClusterManagers(ctx, newRunner(c))
	if err != nil {
		return err
	}
	printReport("mmlsmgr", rep)
	fmt.Println(mgrs.Cluster)
	return nil
}

func runListManagerFilesystems(c *cli.Context) error {
	ctx, stop := rootContext()
	defer stop()
	mgrs, rep, err := gpfs.ClusterManagers(ctx, newRunner(c))
	if err != nil {
		return err
	}
	printReport("mmlsmgr", rep)
	for _, fs := range mgrs.Filesystems {
		fmt.Printf("%s\t%s\n", fs.Filesystem, fs.Node)
	}
	return nil
}

func runListState(c *cli.Context) error {
	ctx, stop := rootContext()
	defer stop()
	states, rep, err := gpfs.States(ctx, newRunner(c))
	if err != nil {
		return err
	}
	printReport("mmgetstate", rep)
	for _, st := range states {
		fmt.Printf("%s\t%s\n", st.Node, st.State)
	}
	return nil
}

func poolCommand() cli.Command {
	return cli.Command{
		Name:  "pool",
		Usage: "inspect storage pool occupancy",
		Subcommands: []cli.Command{
			{
				Name:      "percent",
				Usage:     "print the used percentage of a pool's data storage",
				ArgsUsage: "FILESYSTEM POOL",
				Flags:     []cli.Flag{binDirFlag},
				Action:    runPoolPercent,
			},
		},
	}
}

func runPoolPercent(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("pool percent needs a filesystem and a pool name")
	}
	fs, pool := c.Args().Get(0), c.Args().Get(1)
	ctx, stop := rootContext()
	defer stop()
	pools, err := gpfs.Pools(ctx, newRunner(c), fs)
	if err != nil {
		return err
	}
	for _, p := range pools {
		if p.Name != pool {
			continue
		}
		if p.Data == nil {
			return fmt.Errorf("pool %s of %s holds no data", pool, fs)
		}
		fmt.Println(p.Data.UsedPercent())
		return nil
	}
	return fmt.Errorf("pool %s not found in %s", pool, fs)
}

func quotaCommand() cli.Command {
	return cli.Command{
		Name:  "quota",
		Usage: "report quota usage",
		Subcommands: []cli.Command{
			{
				Name:      "report",
				Usage:     "print the block and file quota report of a filesystem",
				ArgsUsage: "FILESYSTEM",
				Flags:     []cli.Flag{binDirFlag},
				Action:    runQuotaReport,
			},
		},
	}
}

func runQuotaReport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("quota report needs a filesystem name")
	}
	ctx, stop := rootContext()
	defer stop()
	quotas, rep, err := gpfs.Quotas(ctx, newRunner(c), c.Args().First())
	if err != nil {
		return err
	}
	printReport("mmrepquota", rep)
	tw := &tabwriter.Writer{}
	tw.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tFILESET\tUSED\tSOFT\tHARD\tGRACE\tFILES")
	for _, q := range quotas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			q.Kind, q.Name, q.Fileset,
			sizeString(q.BlockUsageBytes),
			limitString(q.BlockQuotaBytes),
			limitString(q.BlockLimitBytes),
			graceString(q.BlockGrace),
			q.FilesUsage)
	}
	return tw.Flush()
}
