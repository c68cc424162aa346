package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	"git.home.luguber.info/inful/continuousdoc/internal/executor"
	"git.home.luguber.info/inful/continuousdoc/internal/git"
	"git.home.luguber.info/inful/continuousdoc/internal/history"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"git.home.luguber.info/inful/continuousdoc/internal/metrics"
	"git.home.luguber.info/inful/continuousdoc/internal/notify"
	"git.home.luguber.info/inful/continuousdoc/internal/orchestrator"
	"git.home.luguber.info/inful/continuousdoc/internal/publish"
	"git.home.luguber.info/inful/continuousdoc/internal/workspace"
)

// runRequest describes one orchestrator run.
type runRequest struct {
	cfg       *config.Config
	units     []config.Unit
	runNumber int
	dryRun    bool
	recorder  metrics.Recorder
	logger    *slog.Logger
	// runner overrides the builder process runner in tests.
	runner executor.CommandRunner
}

// executeRun wires the run's collaborators from configuration and runs the
// orchestrator once. Notification and history sinks are best effort: when
// they cannot be opened the run continues without them.
func executeRun(ctx context.Context, req runRequest) (*orchestrator.Report, error) {
	m := req.cfg.Main
	logger := req.logger

	led, err := ledger.Load(m.WWW.Path, ledger.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	ws := workspace.NewManager(m.Build.Workspace, logger)
	tracker := git.NewTracker(ws, m.Git, logger)
	execOpts := []executor.Option{executor.WithLogger(logger)}
	if req.runner != nil {
		execOpts = append(execOpts, executor.WithRunner(req.runner))
	}
	builder := executor.NewDAPS(m.Build, tracker, execOpts...)

	deps := orchestrator.Dependencies{
		Tracker:   tracker,
		Executor:  builder,
		Publisher: publish.New(logger),
		Ledger:    led,
		Recorder:  req.recorder,
		Logger:    logger,
	}

	if !req.dryRun && m.Notify.URL != "" {
		n, err := notify.NewNATSNotifier(m.Notify.URL, m.Notify.Subject, logger)
		if err != nil {
			logger.Warn("Build notifications disabled", logfields.Error(err))
		} else {
			defer func() {
				if err := n.Close(); err != nil {
					logger.Warn("Failed to close notifier", logfields.Error(err))
				}
			}()
			deps.Notifier = n
		}
	}
	if !req.dryRun && m.History.Path != "" {
		store, err := history.NewSQLiteStore(m.History.Path)
		if err != nil {
			logger.Warn("Build history disabled", logfields.Error(err), logfields.Path(m.History.Path))
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("Failed to close history store", logfields.Error(err))
				}
			}()
			deps.History = store
		}
	}

	o := orchestrator.New(orchestrator.Options{
		RunNumber:        req.runNumber,
		Units:            req.units,
		OutputRoot:       m.WWW.Path,
		Concurrency:      m.Build.Concurrency,
		AdvanceOnFailure: m.Build.AdvanceOnFailure,
		Index:            m.Build.Index,
		DryRun:           req.dryRun,
	}, deps)
	return o.Run(ctx)
}
