package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
)

type call struct {
	dir  string
	name string
	args []string
}

type response struct {
	stdout string
	stderr string
	err    error
}

// fakeRunner answers "clean" and build invocations with scripted output.
type fakeRunner struct {
	calls    []call
	clean    response
	build    response
	deadline bool
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) error {
	f.calls = append(f.calls, call{dir: dir, name: name, args: args})
	_, f.deadline = ctx.Deadline()
	r := f.build
	if len(args) > 0 && args[len(args)-1] == "clean" {
		r = f.clean
	}
	_, _ = io.WriteString(stdout, r.stdout)
	_, _ = io.WriteString(stderr, r.stderr)
	return r.err
}

type staticCheckouts string

func (s staticCheckouts) CheckoutDir(config.Unit) (string, error) { return string(s), nil }

func testUnit() config.Unit {
	return config.Unit{ID: "guide", DC: "DC-admin", Formats: []config.Format{config.FormatHTML}}
}

func newTestDAPS(t *testing.T, r CommandRunner, cfg config.BuildConfig) (*DAPS, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewDAPS(cfg, staticCheckouts(dir), WithRunner(r), WithLogger(logger)), dir, &logs
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, "build", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return p
}

func TestFormatArgs(t *testing.T) {
	cases := map[config.Format][]string{
		config.FormatHTML:       {"html"},
		config.FormatSingleHTML: {"html", "--single"},
		config.FormatPDF:        {"pdf"},
		config.FormatEPUB:       {"epub"},
	}
	for f, want := range cases {
		got, err := FormatArgs(f)
		require.NoError(t, err)
		assert.Equal(t, want, got, f)
	}
	_, err := FormatArgs("docx")
	assert.Error(t, err)
}

func TestBuild_ReturnsLastOutputLine(t *testing.T) {
	runner := &fakeRunner{}
	d, dir, _ := newTestDAPS(t, runner, config.BuildConfig{Args: []string{"--verbosity=0"}, Timeout: time.Minute})
	artifact := writeArtifact(t, dir, "guide.pdf")
	runner.build.stdout = "Building...\n" + artifact + "\n\n"

	got, err := d.Build(context.Background(), testUnit(), config.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, artifact, got)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, call{dir: dir, name: "daps", args: []string{"--verbosity=0", "clean"}}, runner.calls[0])
	assert.Equal(t, call{dir: dir, name: "daps", args: []string{"--verbosity=0", "-d", "DC-admin", "pdf"}}, runner.calls[1])
	assert.True(t, runner.deadline, "timeout is applied")
}

func TestBuild_RelativeArtifactResolvesAgainstCheckout(t *testing.T) {
	runner := &fakeRunner{}
	d, dir, _ := newTestDAPS(t, runner, config.BuildConfig{Command: "daps2"})
	artifact := writeArtifact(t, dir, "html")
	runner.build.stdout = "build/html\n"

	got, err := d.Build(context.Background(), testUnit(), config.FormatSingleHTML)
	require.NoError(t, err)
	assert.Equal(t, artifact, got)
	assert.Equal(t, "daps2", runner.calls[1].name)
	assert.Equal(t, []string{"-d", "DC-admin", "html", "--single"}, runner.calls[1].args)
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name  string
		build response
	}{
		{"no output", response{}},
		{"missing artifact", response{stdout: "/does/not/exist.pdf\n"}},
		{"non-zero exit without artifact", response{stdout: "partial\n", err: errors.New("exit status 1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{build: tt.build}
			d, _, _ := newTestDAPS(t, runner, config.BuildConfig{})

			_, err := d.Build(context.Background(), testUnit(), config.FormatHTML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBuildFailed))
			assert.True(t, derrors.HasCategory(err, derrors.CategoryBuild))
			assert.False(t, derrors.IsFatal(err))
		})
	}
}

func TestBuild_NonZeroExitWithArtifactSucceeds(t *testing.T) {
	runner := &fakeRunner{}
	d, dir, logs := newTestDAPS(t, runner, config.BuildConfig{})
	artifact := writeArtifact(t, dir, "guide.pdf")
	runner.build = response{stdout: artifact + "\n", stderr: "warning: image missing", err: errors.New("exit status 1")}

	got, err := d.Build(context.Background(), testUnit(), config.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, artifact, got)
	assert.Contains(t, logs.String(), "Builder exited with error")
	assert.Contains(t, logs.String(), "exit status 1")
}

func TestBuild_CancelledBuildFails(t *testing.T) {
	runner := &fakeRunner{}
	d, dir, _ := newTestDAPS(t, runner, config.BuildConfig{})
	artifact := writeArtifact(t, dir, "guide.pdf")
	runner.build = response{stdout: artifact + "\n", err: errors.New("signal: killed")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Build(ctx, testUnit(), config.FormatPDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuildFailed))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBuild_CleanFailureIsNotFatal(t *testing.T) {
	runner := &fakeRunner{clean: response{stderr: "nothing to clean", err: errors.New("exit status 2")}}
	d, dir, logs := newTestDAPS(t, runner, config.BuildConfig{})
	artifact := writeArtifact(t, dir, "guide.epub")
	runner.build.stdout = artifact + "\n"

	got, err := d.Build(context.Background(), testUnit(), config.FormatEPUB)
	require.NoError(t, err)
	assert.Equal(t, artifact, got)
	assert.Contains(t, logs.String(), "Clean failed")
	assert.Contains(t, logs.String(), "severity=warning")
	assert.Contains(t, logs.String(), "stderr=\"nothing to clean\"")
}

func TestBuild_StderrIsLoggedAsWarning(t *testing.T) {
	runner := &fakeRunner{}
	d, dir, logs := newTestDAPS(t, runner, config.BuildConfig{})
	artifact := writeArtifact(t, dir, "guide.pdf")
	runner.build = response{stdout: artifact, stderr: "WARNING: image missing"}

	_, err := d.Build(context.Background(), testUnit(), config.FormatPDF)
	require.NoError(t, err)
	out := logs.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "image missing")
}

func TestBuild_UnsupportedFormat(t *testing.T) {
	runner := &fakeRunner{}
	d, _, _ := newTestDAPS(t, runner, config.BuildConfig{})
	_, err := d.Build(context.Background(), testUnit(), "docx")
	assert.True(t, errors.Is(err, ErrBuildFailed))
	assert.Empty(t, runner.calls)
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	err := ExecRunner{}.Run(context.Background(), dir, "sh", []string{"-c", "pwd -P; echo oops >&2"}, &stdout, &stderr)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(stdout.String()))
	assert.Equal(t, "oops", strings.TrimSpace(stderr.String()))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "b", lastLine("a\nb\n\n"))
	assert.Equal(t, "b", lastLine("a\r\nb\r\n"))
	assert.Empty(t, lastLine("\n \n"))
}
