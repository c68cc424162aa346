package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/git"
	"git.home.luguber.info/inful/continuousdoc/internal/history"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"git.home.luguber.info/inful/continuousdoc/internal/metrics"
	"git.home.luguber.info/inful/continuousdoc/internal/observability"
)

// processUnit walks one unit through revision check, build, publish and
// pointer update. Ledger writes are confined to this unit's entry.
func (o *Orchestrator) processUnit(ctx context.Context, u config.Unit) UnitResult {
	start := o.now()
	ctx = observability.WithUnit(ctx, u.ID)
	res := UnitResult{Unit: u.ID}

	o.ledger.EnsureInitialized(u)
	last := o.ledger.LastBuiltRevision(u.ID)

	rev, err := o.latestRevision(ctx, u)
	if err != nil {
		observability.ErrorContext(ctx, o.logger, sourceFailure(err)+", skipping unit", errAttrs(err)...)
		res.Outcome, res.Err = OutcomeSkipped, err
		return o.finishUnit(ctx, res, start)
	}
	res.Revision = rev

	if rev == last {
		observability.InfoContext(ctx, o.logger, "Already up to date: "+u.ID, logfields.Revision(rev))
		res.Outcome = OutcomeUpToDate
		return o.finishUnit(ctx, res, start)
	}
	if err := ctx.Err(); err != nil {
		res.Outcome, res.Err = OutcomeSkipped, err
		return o.finishUnit(ctx, res, start)
	}

	n, err := o.ledger.RecordBuildStart(u.ID)
	if err != nil {
		observability.ErrorContext(ctx, o.logger, "Cannot start build", errAttrs(err)...)
		res.Outcome, res.Err = OutcomeFailed, err
		return o.finishUnit(ctx, res, start)
	}
	res.Build = n
	unitRoot := u.PublishRoot(o.opts.OutputRoot)
	versioned := filepath.Join(unitRoot, strconv.Itoa(n))
	observability.InfoContext(ctx, o.logger, "Building unit",
		logfields.BuildNumber(n),
		logfields.Revision(rev),
		logfields.Path(versioned))

	res.Formats = make(map[config.Format]ledger.Outcome, len(u.Formats))
	succeeded := 0
	for _, f := range u.Formats {
		if err := ctx.Err(); err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return o.finishUnit(ctx, res, start)
		}
		outcome := o.buildFormat(ctx, u, f, filepath.Join(versioned, f.Subdir()))
		o.ledger.RecordFormatResult(u.ID, f, outcome)
		res.Formats[f] = outcome
		if outcome == ledger.OutcomeSuccess {
			succeeded++
		}
	}

	if succeeded == 0 && !o.opts.AdvanceOnFailure {
		observability.WarnContext(ctx, o.logger, "All formats failed, keeping previous revision and pointer",
			logfields.BuildNumber(n))
		res.Outcome = OutcomeFailed
		return o.finishUnit(ctx, res, start)
	}

	o.ledger.RecordSourceRevision(u.ID, rev, o.now())
	if err := o.publisher.PublishCurrentPointer(unitRoot, versioned); err != nil {
		observability.ErrorContext(ctx, o.logger, "Failed to move current pointer", errAttrs(err)...)
	}

	res.Outcome = OutcomeBuilt
	if succeeded == 0 {
		res.Outcome = OutcomeFailed
	}
	return o.finishUnit(ctx, res, start)
}

// checkUnit decides staleness only. Nothing is built and the ledger is not touched.
func (o *Orchestrator) checkUnit(ctx context.Context, u config.Unit) UnitResult {
	start := o.now()
	ctx = observability.WithUnit(ctx, u.ID)
	res := UnitResult{Unit: u.ID}

	var (
		rev string
		err error
	)
	if rr, ok := o.tracker.(RemoteRevisionReader); ok {
		rev, err = rr.RemoteRevision(ctx, u)
	} else {
		rev, err = o.tracker.LatestRevision(ctx, u)
	}
	res.Duration = o.now().Sub(start)
	if err != nil {
		observability.WarnContext(ctx, o.logger, sourceFailure(err), errAttrs(err)...)
		res.Outcome, res.Err = OutcomeSkipped, err
		return res
	}
	res.Revision = rev
	if rev == o.ledger.LastBuiltRevision(u.ID) {
		observability.InfoContext(ctx, o.logger, "Already up to date: "+u.ID, logfields.Revision(rev))
		res.Outcome = OutcomeUpToDate
		return res
	}
	observability.InfoContext(ctx, o.logger, "Would rebuild unit",
		logfields.Revision(rev),
		logfields.Outcome(string(OutcomeStale)))
	res.Outcome = OutcomeStale
	return res
}

func (o *Orchestrator) latestRevision(ctx context.Context, u config.Unit) (string, error) {
	sctx, span := observability.StartSpan(ctx, o.logger, StageSync)
	rev, err := o.tracker.LatestRevision(sctx, u)
	o.recorder.ObserveStageDuration(StageSync, span.End(err))
	o.recorder.IncSourceSyncResult(metrics.ResultFor(err == nil))
	return rev, err
}

// buildFormat builds and publishes one format. Failures are logged and
// reported as a failed outcome; they never stop the remaining formats.
func (o *Orchestrator) buildFormat(ctx context.Context, u config.Unit, f config.Format, destDir string) ledger.Outcome {
	ctx = observability.WithFormat(ctx, string(f))
	format := string(f)

	bctx, span := observability.StartSpan(ctx, o.logger, StageBuild)
	artifact, err := o.executor.Build(bctx, u, f)
	d := span.End(err)
	o.recorder.ObserveStageDuration(StageBuild, d)
	o.recorder.ObserveFormatDuration(format, d)
	if err != nil {
		observability.ErrorContext(ctx, o.logger, "Build failed", errAttrs(err)...)
		o.recorder.IncFormatResult(format, metrics.ResultFailed)
		return ledger.OutcomeFailed
	}

	pctx, span := observability.StartSpan(ctx, o.logger, StagePublish)
	published, err := o.publisher.Publish(artifact, destDir)
	o.recorder.ObserveStageDuration(StagePublish, span.End(err))
	if err != nil {
		observability.ErrorContext(pctx, o.logger, "Publish failed", errAttrs(err)...)
		o.recorder.IncFormatResult(format, metrics.ResultFailed)
		return ledger.OutcomeFailed
	}

	observability.InfoContext(ctx, o.logger, "Published format", logfields.Artifact(published))
	o.recorder.IncFormatResult(format, metrics.ResultSuccess)
	return ledger.OutcomeSuccess
}

// finishUnit records metrics and hands the result to the notifier and the
// history store. Neither may fail the unit.
func (o *Orchestrator) finishUnit(ctx context.Context, res UnitResult, start time.Time) UnitResult {
	res.Duration = o.now().Sub(start)
	o.recorder.IncUnitOutcome(string(res.Outcome))

	e := history.NewUnitEvent(o.opts.RunNumber, res.Unit, string(res.Outcome))
	e.Build = res.Build
	e.Revision = res.Revision
	if len(res.Formats) > 0 {
		e.Formats = make(map[string]string, len(res.Formats))
		for f, outcome := range res.Formats {
			e.Formats[string(f)] = string(outcome)
		}
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}

	if err := o.notifier.Notify(ctx, e); err != nil {
		observability.WarnContext(ctx, o.logger, "Failed to publish unit event", logfields.Error(err))
	}
	if o.history != nil {
		if err := o.history.Append(context.WithoutCancel(ctx), e); err != nil {
			observability.WarnContext(ctx, o.logger, "Failed to record unit history", logfields.Error(err))
		}
	}
	return res
}

func sourceFailure(err error) string {
	if errors.Is(err, git.ErrSourceSyncFailed) {
		return "Source sync failed"
	}
	return "Source unavailable"
}

func errAttrs(err error) []slog.Attr {
	attrs := []slog.Attr{logfields.Error(err)}
	if ce, ok := derrors.AsClassified(err); ok {
		attrs = append(attrs, slog.String("category", string(ce.Category())))
	}
	return attrs
}
