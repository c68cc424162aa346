package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyRunNumber   = "run_number"
	KeyTraceID     = "trace_id"
	KeyUnit        = "unit"
	KeyFormat      = "format"
	KeyBuildNumber = "build_number"
	KeyRevision    = "revision"
	KeyBranch      = "branch"
	KeySource      = "source"
	KeyPath        = "path"
	KeyArtifact    = "artifact"
	KeyOutcome     = "outcome"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyAttempt     = "attempt"
	KeyCommand     = "command"
	KeyStderr      = "stderr"
	KeySubject     = "subject"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func RunNumber(n int) slog.Attr       { return slog.Int(KeyRunNumber, n) }
func TraceID(id string) slog.Attr     { return slog.String(KeyTraceID, id) }
func Unit(id string) slog.Attr        { return slog.String(KeyUnit, id) }
func Format(f string) slog.Attr       { return slog.String(KeyFormat, f) }
func BuildNumber(n int) slog.Attr     { return slog.Int(KeyBuildNumber, n) }
func Revision(rev string) slog.Attr   { return slog.String(KeyRevision, rev) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Source(url string) slog.Attr     { return slog.String(KeySource, url) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Artifact(p string) slog.Attr     { return slog.String(KeyArtifact, p) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Command(cmd string) slog.Attr    { return slog.String(KeyCommand, cmd) }
func Stderr(s string) slog.Attr       { return slog.String(KeyStderr, s) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(KeyDurationMS, d.Milliseconds())
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
