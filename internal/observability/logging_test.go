package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWithRun(t *testing.T) {
	ctx := WithRun(context.Background(), 42)

	lc := GetContext(ctx)
	if lc.RunNumber != 42 {
		t.Errorf("expected run number 42, got %d", lc.RunNumber)
	}
	if len(lc.TraceID) != 36 {
		t.Errorf("expected a uuid trace id, got %q", lc.TraceID)
	}

	other := GetContext(WithRun(context.Background(), 42))
	if other.TraceID == lc.TraceID {
		t.Error("each run should get its own trace id")
	}
}

func TestWithRunKeepsTraceID(t *testing.T) {
	ctx := WithRun(WithTraceID(context.Background(), "daemon-7"), 3)
	if lc := GetContext(ctx); lc.TraceID != "daemon-7" || lc.RunNumber != 3 {
		t.Fatalf("unexpected context %+v", lc)
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUnit(ctx, "guide")
	ctx = WithFormat(ctx, "pdf")
	ctx = WithStage(ctx, "build")

	lc := GetContext(ctx)
	if lc.TraceID != "trace-1" || lc.Unit != "guide" || lc.Format != "pdf" || lc.Stage != "build" {
		t.Fatalf("unexpected context %+v", lc)
	}

	attrs := Attrs(ctx)
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attrs, got %d: %v", len(attrs), attrs)
	}
}

func TestEmptyContextHasNoAttrs(t *testing.T) {
	if attrs := Attrs(context.Background()); len(attrs) != 0 {
		t.Fatalf("expected no attrs, got %v", attrs)
	}
}

func TestContextLoggingIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithUnit(WithTraceID(context.Background(), "t-9"), "guide")
	InfoContext(ctx, logger, "Building", slog.Int("n", 3))
	DebugContext(ctx, logger, "detail")

	out := buf.String()
	for _, want := range []string{"msg=Building", "trace_id=t-9", "unit=guide", "n=3", "msg=detail"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestContextLoggingRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	InfoContext(context.Background(), logger, "hidden")
	ErrorContext(context.Background(), logger, "shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestSpanEnd(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, span := StartSpan(WithUnit(context.Background(), "guide"), logger, "publish")
	if GetContext(ctx).Stage != "publish" {
		t.Fatalf("span should tag the context stage")
	}
	base := span.startTime
	span.now = func() time.Time { return base.Add(250 * time.Millisecond) }

	if d := span.End(errors.New("disk full")); d != 250*time.Millisecond {
		t.Fatalf("unexpected duration %s", d)
	}
	out := buf.String()
	if !strings.Contains(out, "Stage failed") || !strings.Contains(out, "duration_ms=250") || !strings.Contains(out, "disk full") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "log.txt")

	logger, closeFn, err := NewLogger(LoggerOptions{Level: slog.LevelInfo, File: path, Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("Already up to date: guide")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "Already up to date: guide") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(console.String(), "level=INFO") {
		t.Errorf("console missing record: %s", console.String())
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := NewLogger(LoggerOptions{Level: slog.LevelInfo, JSON: true, Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello")
	if !strings.HasPrefix(console.String(), "{") {
		t.Fatalf("expected JSON output, got %s", console.String())
	}
}
