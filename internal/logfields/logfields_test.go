package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r-1", RunID("r-1")},
		{"TraceID", KeyTraceID, "t-1", TraceID("t-1")},
		{"Unit", KeyUnit, "guide", Unit("guide")},
		{"Format", KeyFormat, "pdf", Format("pdf")},
		{"Revision", KeyRevision, "abc123", Revision("abc123")},
		{"Branch", KeyBranch, "main", Branch("main")},
		{"Source", KeySource, "https://example.org/x.git", Source("https://example.org/x.git")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Artifact", KeyArtifact, "build/x.pdf", Artifact("build/x.pdf")},
		{"Outcome", KeyOutcome, "built", Outcome("built")},
		{"Stage", KeyStage, "publish", Stage("publish")},
		{"Command", KeyCommand, "daps", Command("daps")},
		{"Stderr", KeyStderr, "warn", Stderr("warn")},
		{"Subject", KeySubject, "units", Subject("units")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := BuildNumber(3); a.Key != KeyBuildNumber || a.Value.Int64() != 3 {
		t.Fatalf("BuildNumber attr = %v", a)
	}
	if a := RunNumber(42); a.Key != KeyRunNumber || a.Value.Int64() != 42 {
		t.Fatalf("RunNumber attr = %v", a)
	}
	if a := Attempt(2); a.Value.Int64() != 2 {
		t.Fatalf("Attempt attr = %v", a)
	}
	if a := Duration(1500 * time.Millisecond); a.Key != KeyDurationMS || a.Value.Int64() != 1500 {
		t.Fatalf("Duration attr = %v", a)
	}
}

func TestError(t *testing.T) {
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should render empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Key != KeyError || a.Value.String() != "boom" {
		t.Fatalf("Error attr = %v", a)
	}
}
