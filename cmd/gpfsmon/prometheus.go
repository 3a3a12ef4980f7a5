package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/poolio"
	"github.com/fsops/gpfsmon/internal/prom"
)

var sampleFlag = cli.DurationFlag{
	Name:  "sample",
	Usage: "time between the two counter readings rates derive from",
	Value: 2 * time.Second,
}

func prometheusCommand() cli.Command {
	return cli.Command{
		Name:  "prometheus",
		Usage: "print metrics in Prometheus text exposition format",
		Subcommands: []cli.Command{
			{
				Name:   "df",
				Usage:  "capacity metrics of every filesystem",
				Flags:  []cli.Flag{binDirFlag, outputFlag},
				Action: runPromDf,
			},
			{
				Name:   "pool",
				Usage:  "pool throughput metrics sampled from block device counters",
				Flags:  []cli.Flag{binDirFlag, deviceCacheFlag, forceFlag, sampleFlag, outputFlag},
				Action: runPromPool,
			},
			{
				Name:   "quota",
				Usage:  "quota usage metrics of every filesystem",
				Flags:  []cli.Flag{binDirFlag, outputFlag},
				Action: runPromQuota,
			},
			{
				Name:   "fileset",
				Usage:  "fileset inode metrics of every filesystem",
				Flags:  []cli.Flag{binDirFlag, outputFlag},
				Action: runPromFileset,
			},
			{
				Name:   "state",
				Usage:  "daemon state metrics of every node",
				Flags:  []cli.Flag{binDirFlag, outputFlag},
				Action: runPromState,
			},
		},
	}
}

// renderProm writes the registry filled by fill to --output, or to
// stdout when the flag is unset.
func renderProm(c *cli.Context, fill func(ctx context.Context, reg *prometheus.Registry) error) error {
	ctx, stop := rootContext()
	defer stop()
	reg := prometheus.NewRegistry()
	if err := fill(ctx, reg); err != nil {
		return err
	}
	if out := c.String("output"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := prom.Write(f, reg); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return prom.Write(os.Stdout, reg)
}

func runPromDf(c *cli.Context) error {
	run := newRunner(c)
	return renderProm(c, func(ctx context.Context, reg *prometheus.Registry) error {
		names, rep, err := gpfs.FilesystemNames(ctx, run)
		if err != nil {
			return err
		}
		printReport("mmlsfs", rep)
		dfs := make([]gpfs.Df, 0, len(names))
		for _, fs := range names {
			df, dfRep, err := gpfs.DfReport(ctx, run, fs)
			if err != nil {
				return fmt.Errorf("mmdf %s: %w", fs, err)
			}
			printReport("mmdf "+fs, dfRep)
			dfs = append(dfs, df)
		}
		prom.AddCapacity(reg, dfs)
		return nil
	})
}

func runPromPool(c *cli.Context) error {
	run := newRunner(c)
	return renderProm(c, func(ctx context.Context, reg *prometheus.Registry) error {
		if c.Bool("force") {
			if _, err := poolio.LocalNSDs(ctx, run, c.String("device-cache"), true); err != nil {
				return err
			}
		}
		pc := poolio.NewCache(poolio.Config{
			Runner:      run,
			DeviceCache: c.String("device-cache"),
		})
		// Rates derive from the counter delta between two readings.
		if err := pc.RefreshNow(ctx); err != nil {
			return err
		}
		select {
		case <-time.After(c.Duration("sample")):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := pc.RefreshNow(ctx); err != nil {
			return err
		}
		prom.AddPoolIO(reg, pc.Current())
		return nil
	})
}

func runPromQuota(c *cli.Context) error {
	run := newRunner(c)
	return renderProm(c, func(ctx context.Context, reg *prometheus.Registry) error {
		names, rep, err := gpfs.FilesystemNames(ctx, run)
		if err != nil {
			return err
		}
		printReport("mmlsfs", rep)
		var all []gpfs.QuotaEntry
		for _, fs := range names {
			quotas, qRep, err := gpfs.Quotas(ctx, run, fs)
			if err != nil {
				return fmt.Errorf("mmrepquota %s: %w", fs, err)
			}
			printReport("mmrepquota "+fs, qRep)
			all = append(all, quotas...)
		}
		prom.AddQuotas(reg, all)
		return nil
	})
}

func runPromFileset(c *cli.Context) error {
	run := newRunner(c)
	return renderProm(c, func(ctx context.Context, reg *prometheus.Registry) error {
		names, rep, err := gpfs.FilesystemNames(ctx, run)
		if err != nil {
			return err
		}
		printReport("mmlsfs", rep)
		var all []gpfs.Fileset
		for _, fs := range names {
			filesets, fsRep, err := gpfs.Filesets(ctx, run, fs)
			if err != nil {
				return fmt.Errorf("mmlsfileset %s: %w", fs, err)
			}
			printReport("mmlsfileset "+fs, fsRep)
			all = append(all, filesets...)
		}
		prom.AddFilesets(reg, all)
		return nil
	})
}

func runPromState(c *cli.Context) error {
	run := newRunner(c)
	return renderProm(c, func(ctx context.Context, reg *prometheus.Registry) error {
		states, rep, err := gpfs.States(ctx, run)
		if err != nil {
			return err
		}
		printReport("mmgetstate", rep)
		prom.AddStates(reg, states)
		return nil
	})
}
