package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	"git.home.luguber.info/inful/continuousdoc/internal/daemon"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"git.home.luguber.info/inful/continuousdoc/internal/metrics"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Interval time.Duration `help:"Time between runs; overrides daemon.interval"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	return d.run(ctx, g, root, cfg)
}

func (d *DaemonCmd) run(ctx context.Context, g *Global, root *CLI, cfg *config.Config) error {
	m := cfg.Main
	interval := m.Daemon.Interval
	if d.Interval > 0 {
		interval = d.Interval
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	dm, err := daemon.New(daemon.Options{
		Interval:      interval,
		DocsPath:      root.Docs,
		WatchDocs:     m.Daemon.WatchDocs,
		WatchDebounce: m.Daemon.WatchDebounce,
		MetricsListen: m.Metrics.Listen,
		Registry:      reg,
	}, func(ctx context.Context) error {
		return runScheduled(ctx, g, root, recorder)
	}, g.Logger)
	if err != nil {
		return err
	}
	return dm.Run(ctx)
}

// runScheduled reloads both config files so edits apply to the next run,
// then takes a fresh run number.
func runScheduled(ctx context.Context, g *Global, root *CLI, recorder metrics.Recorder) error {
	cfg, err := config.Load(root.Config, root.Docs)
	if err != nil {
		g.Logger.Error("Configuration invalid, skipping run", logfields.Error(err))
		return err
	}
	runNumber, err := config.NextRunNumber(cfg.Main.Path)
	if err != nil {
		return err
	}
	report, err := executeRun(ctx, runRequest{
		cfg:       cfg,
		units:     cfg.Units,
		runNumber: runNumber,
		recorder:  recorder,
		logger:    g.Logger,
	})
	if report != nil {
		printReport(g, report)
	}
	return err
}
