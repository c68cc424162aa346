package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/orchestrator"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Unit   []string `short:"u" help:"Only process these unit ids (repeatable)"`
	DryRun bool     `name:"dry-run" help:"Report which units are stale without building or writing the ledger"`
	Strict bool     `help:"Exit non-zero when any unit was skipped or failed"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	report, err := b.execute(ctx, g, cfg)
	if report != nil {
		printReport(g, report)
	}
	if err != nil {
		return err
	}
	if b.Strict && report.HasFailures() {
		return derrors.RuntimeError("run finished with failed units").
			WithContext("skipped", report.Count(orchestrator.OutcomeSkipped)).
			WithContext("failed", report.Count(orchestrator.OutcomeFailed)).
			Build()
	}
	return nil
}

func (b *BuildCmd) execute(ctx context.Context, g *Global, cfg *config.Config) (*orchestrator.Report, error) {
	units, err := selectUnits(cfg.Units, b.Unit)
	if err != nil {
		return nil, err
	}

	// Dry runs leave the counter alone; the number is only a label.
	runNumber := cfg.Main.WWW.Build + 1
	if !b.DryRun {
		if runNumber, err = config.NextRunNumber(cfg.Main.Path); err != nil {
			return nil, err
		}
	}
	return executeRun(ctx, runRequest{
		cfg:       cfg,
		units:     units,
		runNumber: runNumber,
		dryRun:    b.DryRun,
		logger:    g.Logger,
	})
}

func printReport(g *Global, r *orchestrator.Report) {
	mode := "Run"
	if r.DryRun {
		mode = "Dry run"
	}
	g.printf("%s %d: %d built, %d up to date, %d skipped, %d failed",
		mode, r.RunNumber,
		r.Count(orchestrator.OutcomeBuilt),
		r.Count(orchestrator.OutcomeUpToDate),
		r.Count(orchestrator.OutcomeSkipped),
		r.Count(orchestrator.OutcomeFailed))
	if r.DryRun {
		g.printf(", %d stale", r.Count(orchestrator.OutcomeStale))
	}
	g.printf("\n")
	for _, u := range r.Units {
		switch u.Outcome {
		case orchestrator.OutcomeUpToDate:
			continue
		case orchestrator.OutcomeBuilt:
			g.printf("  %-20s %-10s build %d (%s)\n", u.Unit, u.Outcome, u.Build, shortRevision(u.Revision))
		default:
			detail := ""
			if u.Err != nil {
				detail = ": " + u.Err.Error()
			}
			g.printf("  %-20s %s%s\n", u.Unit, u.Outcome, detail)
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
