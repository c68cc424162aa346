// Package daemon runs documentation builds on a schedule, re-running when the
// documentation config changes, and serves Prometheus metrics while it runs.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"git.home.luguber.info/inful/continuousdoc/internal/observability"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// JobName names the periodic run job in the scheduler.
const JobName = "documentation-run"

// RunFunc performs one complete documentation run.
type RunFunc func(ctx context.Context) error

// Options configure the daemon.
type Options struct {
	Interval time.Duration
	// DocsPath is watched for changes when WatchDocs is set.
	DocsPath      string
	WatchDocs     bool
	WatchDebounce time.Duration
	// MetricsListen enables the /metrics endpoint when non-empty.
	MetricsListen string
	Registry      *prom.Registry
}

// Daemon triggers runs; it never runs two at once.
type Daemon struct {
	opts   Options
	run    RunFunc
	logger *slog.Logger

	status    atomic.Value // Status
	startTime time.Time
	runs      atomic.Int64
	failures  atomic.Int64

	mu          sync.Mutex
	job         gocron.Job
	metricsAddr string
	ready       chan struct{}
	readyOnce   sync.Once
}

// New creates a daemon. Run starts it.
func New(opts Options, run RunFunc, logger *slog.Logger) (*Daemon, error) {
	if run == nil {
		return nil, errors.New("run function is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0, got %s", opts.Interval)
	}
	if opts.WatchDocs && opts.DocsPath == "" {
		return nil, errors.New("docs path is required when watching")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{opts: opts, run: run, logger: logger, ready: make(chan struct{})}
	d.status.Store(StatusStopped)
	return d, nil
}

// Run starts the scheduler, the optional config watcher and metrics server,
// and blocks until ctx is cancelled. The first run starts immediately.
func (d *Daemon) Run(ctx context.Context) error {
	if d.Status() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.Status())
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	var metrics *metricsServer
	if d.opts.MetricsListen != "" {
		var err error
		metrics, err = startMetricsServer(d.opts.MetricsListen, d.opts.Registry, d.logger)
		if err != nil {
			d.status.Store(StatusError)
			return err
		}
		d.mu.Lock()
		d.metricsAddr = metrics.Addr()
		d.mu.Unlock()
	}

	scheduler, err := NewScheduler(d.logger)
	if err != nil {
		d.status.Store(StatusError)
		metrics.Stop(ctx)
		return err
	}
	job, err := scheduler.ScheduleEvery(JobName, d.opts.Interval, func() { d.runOnce(ctx) })
	if err != nil {
		d.status.Store(StatusError)
		_ = scheduler.Stop(ctx)
		metrics.Stop(ctx)
		return err
	}
	d.mu.Lock()
	d.job = job
	d.mu.Unlock()

	var watcher *ConfigWatcher
	if d.opts.WatchDocs {
		watcher, err = NewConfigWatcher(d.opts.DocsPath, d.opts.WatchDebounce, d.TriggerRun, d.logger)
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			d.logger.Error("Failed to start config watcher", logfields.Error(err))
			watcher = nil
		}
	}

	scheduler.Start()
	d.status.Store(StatusRunning)
	d.logger.Info("Daemon started",
		slog.Duration("interval", d.opts.Interval),
		slog.Bool("watch_docs", watcher != nil),
		slog.String("metrics", d.MetricsAddr()))
	d.readyOnce.Do(func() { close(d.ready) })

	<-ctx.Done()

	d.status.Store(StatusStopping)
	d.logger.Info("Stopping daemon")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			d.logger.Error("Failed to stop config watcher", logfields.Error(err))
		}
	}
	if err := scheduler.Stop(stopCtx); err != nil {
		d.logger.Error("Failed to stop scheduler", logfields.Error(err))
	}
	metrics.Stop(stopCtx)

	d.status.Store(StatusStopped)
	d.logger.Info("Daemon stopped",
		slog.Duration("uptime", time.Since(d.startTime)),
		slog.Int64("runs", d.runs.Load()),
		slog.Int64("failed_runs", d.failures.Load()))
	return nil
}

// TriggerRun asks for a run now. It is dropped when a run is in progress.
func (d *Daemon) TriggerRun() {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	if job == nil {
		return
	}
	if err := job.RunNow(); err != nil {
		d.logger.Warn("Failed to trigger run", logfields.Error(err))
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n := d.runs.Add(1)
	id := uuid.NewString()
	ctx = observability.WithTraceID(ctx, id)
	logger := d.logger.With(logfields.RunID(id))
	start := time.Now()
	logger.Info("Starting scheduled run", slog.Int64("run", n))
	if err := d.run(ctx); err != nil {
		d.failures.Add(1)
		logger.Error("Scheduled run failed", logfields.Error(err), logfields.Duration(time.Since(start)))
		return
	}
	logger.Info("Scheduled run finished", logfields.Duration(time.Since(start)))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// Runs returns how many runs were started.
func (d *Daemon) Runs() int { return int(d.runs.Load()) }

// MetricsAddr is the bound metrics address, empty when disabled.
func (d *Daemon) MetricsAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metricsAddr
}

// Ready is closed once Run has started all components.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }
