package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/fsops/gpfsmon/internal/alerter"
	"github.com/fsops/gpfsmon/internal/cache"
	"github.com/fsops/gpfsmon/internal/collector"
	"github.com/fsops/gpfsmon/internal/config"
	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/mmcmd"
	"github.com/fsops/gpfsmon/internal/nmon"
	"github.com/fsops/gpfsmon/internal/notify"
	"github.com/fsops/gpfsmon/internal/poolio"
	"github.com/fsops/gpfsmon/internal/store"
)

func serveCommand() cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "run the monitoring daemon",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config, c",
				Usage: "path to gpfsmon.yml config file",
			},
		},
		Action: runServe,
	}
}

func runServe(cliCtx *cli.Context) error {
	configPath := cliCtx.String("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigFileNotFound) {
			return fmt.Errorf("%v\ncopy the example config to get started:\n  cp gpfsmon.example.yml %s", err, configPath)
		}
		return fmt.Errorf("loading config: %w", err)
	}

	return serve(cfg)
}

// serve runs all daemon components until a termination signal arrives.
// It returns an error only for setup failures; transient collection
// failures are logged and the daemon keeps serving the last good data.
func serve(cfg *config.Config) error {
	setupLogging(cfg)

	ver, sha, built, dirty := buildInfo()
	slog.Info("starting gpfsmon",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
	)

	run, err := newServeRunner(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.RuntimeDir, 0o755); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}
	if err := os.MkdirAll(cfg.TextfileDir, 0o755); err != nil {
		return fmt.Errorf("creating textfile directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	c := cache.New()
	pool := collector.NewWorkerPool(cfg.WorkerPoolSize)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	collectors := []collector.Collector{
		collector.NewCapacityCollector(collector.CapacityConfig{
			PollInterval: cfg.Intervals.Capacity.Duration,
			TextfileDir:  cfg.TextfileDir,
		}, run, pool, c, st),
		collector.NewQuotaCollector(collector.QuotaConfig{
			PollInterval: cfg.Intervals.Quota.Duration,
			TextfileDir:  cfg.TextfileDir,
		}, run, pool, c, st),
		collector.NewStateCollector(collector.StateConfig{
			PollInterval: cfg.Intervals.State.Duration,
			TextfileDir:  cfg.TextfileDir,
		}, run, pool, c),
		collector.NewFilesetCollector(collector.FilesetConfig{
			PollInterval: cfg.Intervals.Fileset.Duration,
			TextfileDir:  cfg.TextfileDir,
		}, run, pool, c),
	}

	// Pool throughput sampling reads local block device counters, which
	// do not exist for file systems mounted from remote NSD servers.
	poolIOEnabled := cfg.PoolIO.Enabled
	if poolIOEnabled && cfg.SSH != nil {
		slog.Warn("pool throughput sampling needs local block devices, disabled with the ssh runner")
		poolIOEnabled = false
	}

	var src alerter.PoolIOSource
	if poolIOEnabled {
		pc := poolio.NewCache(poolio.Config{
			Runner:      run,
			DeviceCache: filepath.Join(cfg.RuntimeDir, "nsd-devices"),
			Interval:    cfg.PoolIO.Refresh.Duration,
			StaleAfter:  cfg.PoolIO.StaleAfter,
		})
		g.Go(func() error { return pc.Run(ctx) })
		src = pc

		collectors = append(collectors, collector.NewPoolIOCollector(collector.PoolIOConfig{
			PollInterval: cfg.Intervals.PoolIO.Duration,
			TextfileDir:  cfg.TextfileDir,
		}, pc, c, st))

		if cfg.Nmon.Enabled {
			feeder := nmon.NewFeeder(nmon.FeederConfig{
				Source:    pc,
				GroupFile: filepath.Join(cfg.RuntimeDir, "nmon-groups"),
				RatesFile: filepath.Join(cfg.RuntimeDir, "nmon-rates"),
				Interval:  cfg.Nmon.Refresh.Duration,
			})
			g.Go(func() error { return feeder.Run(ctx) })
		}
	}

	for _, col := range collectors {
		g.Go(func() error { return collector.Run(ctx, col) })
	}

	// Start pruner
	pruner := store.NewPruner(st, store.DefaultRetention())
	g.Go(func() error { return pruner.Run(ctx) })

	// Build notification providers
	var providers []notify.Provider
	for _, ncfg := range cfg.Notifications {
		switch ncfg.Type {
		case "ntfy":
			providers = append(providers, notify.NewNtfy(ncfg.URL, ncfg.Topic))
		case "webhook":
			method := ncfg.Method
			if method == "" {
				method = "POST"
			}
			providers = append(providers, notify.NewWebhook(ncfg.URL, method, ncfg.Headers))
		}
	}

	al := alerter.NewAlerter(c, st, src, providers, applyAlertOverrides(cfg.Alerts))
	g.Go(func() error { return al.Run(ctx) })

	slog.Info("all components started",
		"collectors", len(collectors),
		"poolio", poolIOEnabled,
		"nmon", poolIOEnabled && cfg.Nmon.Enabled,
		"notifications", len(providers),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
	}

	slog.Info("gpfsmon stopped gracefully")
	return nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// newServeRunner builds the command runner: local by default, SSH when
// an ssh section is configured.
func newServeRunner(cfg *config.Config) (gpfs.Runner, error) {
	if cfg.SSH == nil {
		return mmcmd.Local{BinDir: cfg.BinDir}, nil
	}
	return mmcmd.NewSSH(mmcmd.SSHConfig{
		Host:    cfg.SSH.Host,
		User:    cfg.SSH.User,
		KeyPath: cfg.SSH.KeyPath,
		BinDir:  cfg.BinDir,
	})
}

// applyAlertOverrides layers the configured per-rule settings over the
// built-in defaults. An absent rule keeps its default entirely; an
// empty severity or zero cooldown keeps the default for that field.
func applyAlertOverrides(alerts config.AlertsConfig) alerter.AlertConfig {
	cfg := alerter.DefaultAlertConfig()

	if a := alerts.DiskDown; a != nil {
		cfg.DiskDown.Duration = a.Duration.Duration
		if a.Severity != "" {
			cfg.DiskDown.Severity = a.Severity
		}
		if a.Cooldown.Duration > 0 {
			cfg.DiskDown.Cooldown = a.Cooldown.Duration
		}
	}
	if a := alerts.NodeDown; a != nil {
		cfg.NodeDown.Duration = a.Duration.Duration
		if a.Severity != "" {
			cfg.NodeDown.Severity = a.Severity
		}
		if a.Cooldown.Duration > 0 {
			cfg.NodeDown.Cooldown = a.Cooldown.Duration
		}
	}
	if a := alerts.QuotaExceeded; a != nil {
		if a.Severity != "" {
			cfg.QuotaExceeded.Severity = a.Severity
		}
		if a.Cooldown.Duration > 0 {
			cfg.QuotaExceeded.Cooldown = a.Cooldown.Duration
		}
	}
	if a := alerts.Deadlock; a != nil {
		if a.Severity != "" {
			cfg.Deadlock.Severity = a.Severity
		}
		if a.Cooldown.Duration > 0 {
			cfg.Deadlock.Cooldown = a.Cooldown.Duration
		}
	}
	if a := alerts.PoolIOStale; a != nil {
		if a.Severity != "" {
			cfg.PoolIOStale.Severity = a.Severity
		}
		if a.Cooldown.Duration > 0 {
			cfg.PoolIOStale.Cooldown = a.Cooldown.Duration
		}
	}

	return cfg
}
