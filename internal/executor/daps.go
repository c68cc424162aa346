// Package executor runs the external document builder for one unit and format.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
)

// ErrBuildFailed marks a format build that produced no usable artifact.
var ErrBuildFailed = errors.New("build failed")

// CheckoutResolver maps a unit to the directory the builder runs in.
type CheckoutResolver interface {
	CheckoutDir(u config.Unit) (string, error)
}

// DAPS drives the daps command line tool.
type DAPS struct {
	command   string
	args      []string
	timeout   time.Duration
	checkouts CheckoutResolver
	runner    CommandRunner
	logger    *slog.Logger
}

// Option configures a DAPS executor.
type Option func(*DAPS)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option {
	return func(d *DAPS) {
		if r != nil {
			d.runner = r
		}
	}
}

// WithLogger sets the logger for builder output.
func WithLogger(l *slog.Logger) Option {
	return func(d *DAPS) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDAPS creates an executor from the build section of the main configuration.
func NewDAPS(cfg config.BuildConfig, checkouts CheckoutResolver, opts ...Option) *DAPS {
	d := &DAPS{
		command:   cfg.Command,
		args:      cfg.Args,
		timeout:   cfg.Timeout,
		checkouts: checkouts,
		runner:    ExecRunner{},
		logger:    slog.Default(),
	}
	if d.command == "" {
		d.command = config.DefaultCommand
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FormatArgs returns the daps subcommand arguments producing f.
func FormatArgs(f config.Format) ([]string, error) {
	switch f {
	case config.FormatHTML:
		return []string{"html"}, nil
	case config.FormatSingleHTML:
		return []string{"html", "--single"}, nil
	case config.FormatPDF:
		return []string{"pdf"}, nil
	case config.FormatEPUB:
		return []string{"epub"}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// Build cleans the checkout and builds one format. It returns the artifact
// path daps reports on the last line of its output.
func (d *DAPS) Build(ctx context.Context, u config.Unit, f config.Format) (string, error) {
	formatArgs, err := FormatArgs(f)
	if err != nil {
		return "", d.fail(u, f, "unsupported format", err)
	}
	dir, err := d.checkouts.CheckoutDir(u)
	if err != nil {
		return "", d.fail(u, f, "cannot resolve checkout", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.clean(ctx, u, dir)

	args := append(append(append([]string{}, d.args...), "-d", u.DC), formatArgs...)
	stdout, stderr, runErr := d.run(ctx, dir, args)
	if stderr != "" {
		d.logger.Warn("Builder reported errors",
			logfields.Unit(u.ID),
			logfields.Format(string(f)),
			logfields.Stderr(stderr))
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return "", d.fail(u, f, "builder interrupted", fmt.Errorf("%w: %w", runErr, ctx.Err()))
		}
		// The artifact on disk decides the outcome, not the exit status.
		d.logger.Warn("Builder exited with error",
			logfields.Unit(u.ID),
			logfields.Format(string(f)),
			logfields.Error(runErr))
	}

	artifact := lastLine(stdout)
	if artifact == "" {
		return "", d.fail(u, f, "builder reported no artifact", errors.New("empty output"))
	}
	if !filepath.IsAbs(artifact) {
		artifact = filepath.Join(dir, artifact)
	}
	if _, err := os.Stat(artifact); err != nil {
		return "", d.fail(u, f, "artifact missing", err)
	}
	d.logger.Debug("Build produced artifact",
		logfields.Unit(u.ID),
		logfields.Format(string(f)),
		logfields.Artifact(artifact))
	return artifact, nil
}

// clean removes previous build output. Failure only warrants a warning.
func (d *DAPS) clean(ctx context.Context, u config.Unit, dir string) {
	args := append(append([]string{}, d.args...), "clean")
	_, stderr, err := d.run(ctx, dir, args)
	if err != nil {
		warn := derrors.BuildError("Clean failed").
			WithCause(err).
			WithContext("unit", u.ID).
			WithContext("stderr", stderr).
			Warning().
			Build()
		d.logger.LogAttrs(ctx, slog.LevelWarn, warn.Message(), warn.LogAttrs()...)
	}
}

func (d *DAPS) run(ctx context.Context, dir string, args []string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	d.logger.Debug("Running builder",
		logfields.Command(d.command+" "+strings.Join(args, " ")),
		logfields.Path(dir))
	err := d.runner.Run(ctx, dir, d.command, args, &stdout, &stderr)
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func (d *DAPS) fail(u config.Unit, f config.Format, message string, cause error) error {
	return derrors.BuildError(message).
		WithCause(fmt.Errorf("%w: %w", ErrBuildFailed, cause)).
		WithContext("unit", u.ID).
		WithContext("format", string(f)).
		Build()
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimRight(out, "\r\n \t"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
