package observability

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
)

// Span times one stage of a run and logs its outcome when ended.
type Span struct {
	ctx       context.Context
	logger    *slog.Logger
	name      string
	startTime time.Time
	now       func() time.Time
}

// StartSpan tags ctx with the stage name and starts timing it.
func StartSpan(ctx context.Context, logger *slog.Logger, stage string) (context.Context, *Span) {
	ctx = WithStage(ctx, stage)
	s := &Span{ctx: ctx, logger: logger, name: stage, startTime: time.Now(), now: time.Now}
	DebugContext(ctx, logger, "Stage started")
	return ctx, s
}

// End logs the stage duration, at warn level when err is set, and returns it.
func (s *Span) End(err error) time.Duration {
	d := s.now().Sub(s.startTime)
	if err != nil {
		WarnContext(s.ctx, s.logger, "Stage failed", logfields.Duration(d), logfields.Error(err))
		return d
	}
	DebugContext(s.ctx, s.logger, "Stage finished", logfields.Duration(d))
	return d
}

// Name returns the stage name the span was started with.
func (s *Span) Name() string { return s.name }
