// Package orchestrator runs one documentation build pass: for every unit it
// checks the tracked revision, rebuilds stale units format by format,
// publishes the artifacts and finally persists the ledger once.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	"git.home.luguber.info/inful/continuousdoc/internal/history"
	"git.home.luguber.info/inful/continuousdoc/internal/index"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"git.home.luguber.info/inful/continuousdoc/internal/metrics"
	"git.home.luguber.info/inful/continuousdoc/internal/notify"
	"git.home.luguber.info/inful/continuousdoc/internal/observability"
)

// Stage names used for spans and metrics.
const (
	StageSync    = "sync"
	StageBuild   = "build"
	StagePublish = "publish"
	StagePersist = "persist"
	StageIndex   = "index"
)

// IndexTitle is the heading of the generated landing page.
const IndexTitle = "Documentation"

// SourceTracker reports the current revision of a unit's tracked branch,
// synchronising its checkout on the way.
type SourceTracker interface {
	LatestRevision(ctx context.Context, u config.Unit) (string, error)
}

// RemoteRevisionReader looks up a branch revision without touching checkouts.
// Dry runs prefer it when the tracker provides it.
type RemoteRevisionReader interface {
	RemoteRevision(ctx context.Context, u config.Unit) (string, error)
}

// Executor builds one format of a unit and returns the artifact path.
type Executor interface {
	Build(ctx context.Context, u config.Unit, f config.Format) (string, error)
}

// Publisher places artifacts and maintains the current pointer.
type Publisher interface {
	Publish(artifact, destDir string) (string, error)
	PublishCurrentPointer(unitRoot, versionedDir string) error
}

// Options are the per-run settings.
type Options struct {
	// RunNumber identifies the run and names its ledger snapshot.
	RunNumber int
	Units     []config.Unit
	// OutputRoot is the public tree; the ledger lives at its root.
	OutputRoot       string
	Concurrency      int
	AdvanceOnFailure bool
	Index            bool
	DryRun           bool
}

// Dependencies are the collaborators of a run. Recorder, Notifier, History
// and Logger are optional.
type Dependencies struct {
	Tracker   SourceTracker
	Executor  Executor
	Publisher Publisher
	Ledger    *ledger.Ledger
	Recorder  metrics.Recorder
	Notifier  notify.Notifier
	History   history.Store
	Logger    *slog.Logger
}

// Orchestrator executes a single run.
type Orchestrator struct {
	opts      Options
	tracker   SourceTracker
	executor  Executor
	publisher Publisher
	ledger    *ledger.Ledger
	recorder  metrics.Recorder
	notifier  notify.Notifier
	history   history.Store
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an orchestrator for one run.
func New(opts Options, deps Dependencies) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	o := &Orchestrator{
		opts:      opts,
		tracker:   deps.Tracker,
		executor:  deps.Executor,
		publisher: deps.Publisher,
		ledger:    deps.Ledger,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		history:   deps.History,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if o.recorder == nil {
		o.recorder = metrics.NoopRecorder{}
	}
	if o.notifier == nil {
		o.notifier = notify.Noop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.ledger == nil {
		o.ledger = ledger.New(ledger.WithLogger(o.logger))
	}
	return o
}

// Run processes all units and persists the ledger once every unit task has
// finished. A cancelled run returns the partial report and ctx's error
// without persisting. Only ledger persistence failures are returned as
// run errors otherwise; per-unit failures are in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := o.now()
	ctx = observability.WithRun(ctx, o.opts.RunNumber)
	report := &Report{RunNumber: o.opts.RunNumber, DryRun: o.opts.DryRun}

	observability.InfoContext(ctx, o.logger, "Run started",
		slog.Int("units", len(o.opts.Units)),
		slog.Int("concurrency", o.opts.Concurrency),
		slog.Bool("dry_run", o.opts.DryRun))
	if !o.opts.DryRun {
		o.recorder.SetLastRunNumber(o.opts.RunNumber)
	}

	results := make([]UnitResult, len(o.opts.Units))
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, u := range o.opts.Units {
		if ctx.Err() != nil {
			results[i] = UnitResult{Unit: u.ID, Outcome: OutcomeSkipped, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = UnitResult{Unit: u.ID, Outcome: OutcomeSkipped, Err: err}
				return nil
			}
			if o.opts.DryRun {
				results[i] = o.checkUnit(ctx, u)
				return nil
			}
			results[i] = o.processUnit(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	report.Units = results

	if err := ctx.Err(); err != nil {
		observability.WarnContext(ctx, o.logger, "Run cancelled, ledger not persisted", logfields.Error(err))
		o.finishRun(ctx, report, start)
		return report, err
	}
	if o.opts.DryRun {
		o.finishRun(ctx, report, start)
		return report, nil
	}

	pctx, span := observability.StartSpan(ctx, o.logger, StagePersist)
	err := o.ledger.Persist(o.opts.OutputRoot, o.opts.RunNumber)
	o.recorder.ObserveStageDuration(StagePersist, span.End(err))
	if err != nil {
		observability.ErrorContext(pctx, o.logger, "Failed to persist ledger", logfields.Error(err))
		o.finishRun(ctx, report, start)
		return report, err
	}
	report.Persisted = true

	if o.opts.Index {
		report.IndexPath = o.writeIndex(ctx)
	}
	o.finishRun(ctx, report, start)
	return report, nil
}

func (o *Orchestrator) writeIndex(ctx context.Context) string {
	ictx, span := observability.StartSpan(ctx, o.logger, StageIndex)
	p, err := index.Write(o.opts.OutputRoot, IndexTitle, o.ledger.Snapshot())
	o.recorder.ObserveStageDuration(StageIndex, span.End(err))
	if err != nil {
		observability.WarnContext(ictx, o.logger, "Failed to write index page", logfields.Error(err))
		return ""
	}
	return p
}

func (o *Orchestrator) finishRun(ctx context.Context, r *Report, start time.Time) {
	r.Duration = o.now().Sub(start)
	if !r.DryRun {
		o.recorder.ObserveRunDuration(r.Duration)
	}
	observability.InfoContext(ctx, o.logger, "Run finished",
		slog.Int(string(OutcomeBuilt), r.Count(OutcomeBuilt)),
		slog.Int(string(OutcomeUpToDate), r.Count(OutcomeUpToDate)),
		slog.Int(string(OutcomeSkipped), r.Count(OutcomeSkipped)),
		slog.Int(string(OutcomeFailed), r.Count(OutcomeFailed)),
		slog.Int(string(OutcomeStale), r.Count(OutcomeStale)),
		slog.Bool("persisted", r.Persisted),
		logfields.Duration(r.Duration))
}
