package observability

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LoggerOptions describes the sinks and encoding of the process logger.
type LoggerOptions struct {
	Level slog.Level
	JSON  bool
	// File, when set, receives a copy of every record. It is truncated on open.
	File string
	// Console defaults to os.Stderr.
	Console io.Writer
}

// NewLogger builds the process logger. The returned close function releases
// the log file and is safe to call when no file was opened.
func NewLogger(opts LoggerOptions) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	closeFn := func() error { return nil }

	out := console
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, closeFn, err
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) // #nosec G304 -- operator supplied log path
		if err != nil {
			return nil, closeFn, err
		}
		out = io.MultiWriter(console, f)
		closeFn = f.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closeFn, nil
}
