package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
	"git.home.luguber.info/inful/continuousdoc/internal/publish"
)

// builderScript stands in for daps: clean succeeds and pdf fails. html
// produces a directory printed with a trailing slash, as daps does; every
// other format writes a single file.
const builderScript = `#!/bin/sh
[ "$1" = clean ] && exit 0
fmt="$3"
if [ "$fmt" = pdf ]; then
	echo "pdf toolchain missing" >&2
	exit 1
fi
if [ "$fmt" = html ]; then
	mkdir -p build/$2/html/$2
	echo "<html>$2</html>" > build/$2/html/$2/index.html
	echo build/$2/html/$2/
	exit 0
fi
mkdir -p build/$fmt
echo "$2 $fmt" > build/$fmt/index.$fmt
echo build/$fmt/index.$fmt
`

type cliEnv struct {
	dir     string
	www     string
	source  string
	repo    *git.Repository
	main    string
	docs    string
	logFile string
	out     *bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:     dir,
		www:     filepath.Join(dir, "www"),
		source:  filepath.Join(dir, "doc-guide"),
		main:    filepath.Join(dir, "main.conf"),
		docs:    filepath.Join(dir, "docs.conf"),
		logFile: filepath.Join(dir, "log.txt"),
		out:     &bytes.Buffer{},
	}

	repo, err := git.PlainInit(env.source, false)
	require.NoError(t, err)
	env.repo = repo
	env.commit(t, "index.xml", "<book/>")

	script := filepath.Join(dir, "fake-daps")
	require.NoError(t, os.WriteFile(script, []byte(builderScript), 0o755)) // #nosec G306 -- test executable

	mainConf := fmt.Sprintf(`[www]
	path = %s
	build = 0
[build]
	command = %s
	workspace = %s
[git]
	max-retries = 0
[history]
	path = %s
[log]
	file = %s
`, env.www, script, filepath.Join(dir, "repos"), filepath.Join(dir, "history.db"), env.logFile)
	require.NoError(t, os.WriteFile(env.main, []byte(mainConf), 0o600))

	docsConf := fmt.Sprintf(`[guide]
	version = 15
	product = SLES
	name = Administration Guide
	language = en-us
	type = guide
	source = %s
	branch = master
	dc = DC-admin
	formats = html,pdf
`, env.source)
	require.NoError(t, os.WriteFile(env.docs, []byte(docsConf), 0o600))
	return env
}

func (e *cliEnv) commit(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.source, name), []byte(content), 0o600))
	wt, err := e.repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("update "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "Docs", Email: "docs@example.org", When: time.Now()},
	})
	require.NoError(t, err)
}

func (e *cliEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	e.out.Reset()
	g := &Global{Out: e.out, Console: io.Discard}
	defer func() { _ = g.Close() }()

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("continuousdoc"),
		kong.Bind(g),
		kong.Vars{"version": "test"},
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	)
	require.NoError(t, err)
	kctx, err := parser.Parse(append([]string{"-c", e.main, "-d", e.docs}, args...))
	if err != nil {
		return err
	}
	return kctx.Run(g, cli)
}

func TestBuild_EndToEnd(t *testing.T) {
	env := newCLIEnv(t)

	require.NoError(t, env.run(t, "build"))
	assert.Contains(t, env.out.String(), "Run 1: 1 built, 0 up to date")

	unitRoot := filepath.Join(env.www, "en-us", "guide")
	target, err := os.Readlink(filepath.Join(unitRoot, publish.CurrentLink))
	require.NoError(t, err)
	assert.Equal(t, "1", target)
	assert.FileExists(t, filepath.Join(unitRoot, "current", "html", "index.html"))
	assert.NoDirExists(t, filepath.Join(unitRoot, "1", "pdf"))
	assert.FileExists(t, filepath.Join(env.www, "index.html"))

	led, err := ledger.Load(env.www)
	require.NoError(t, err)
	e, ok := led.Get("guide")
	require.True(t, ok)
	assert.Equal(t, 1, e.Build)
	assert.Equal(t, ledger.OutcomeSuccess, e.Status["html"])
	assert.Equal(t, ledger.OutcomeFailed, e.Status["pdf"])
	head, err := env.repo.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Hash().String(), e.Source.Commit)

	m, err := config.LoadMain(env.main)
	require.NoError(t, err)
	assert.Equal(t, 1, m.WWW.Build, "run counter persisted")

	logData, err := os.ReadFile(env.logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Run finished")

	require.NoError(t, env.run(t, "build"))
	assert.Contains(t, env.out.String(), "Run 2: 0 built, 1 up to date")
	assert.FileExists(t, ledger.SnapshotPath(env.www, 2))

	env.commit(t, "intro.xml", "<chapter/>")
	require.NoError(t, env.run(t, "build"))
	assert.Contains(t, env.out.String(), "Run 3: 1 built")
	target, err = os.Readlink(filepath.Join(unitRoot, publish.CurrentLink))
	require.NoError(t, err)
	assert.Equal(t, "2", target)
}

func TestBuild_DryRunKeepsState(t *testing.T) {
	env := newCLIEnv(t)

	require.NoError(t, env.run(t, "build", "--dry-run"))
	assert.Contains(t, env.out.String(), "Dry run 1:")
	assert.Contains(t, env.out.String(), "1 stale")

	m, err := config.LoadMain(env.main)
	require.NoError(t, err)
	assert.Equal(t, 0, m.WWW.Build, "dry run leaves the counter alone")
	assert.NoFileExists(t, filepath.Join(env.www, ledger.CurrentFile))
	assert.NoDirExists(t, filepath.Join(env.dir, "repos", "doc-guide"))
}

func TestBuild_UnknownUnit(t *testing.T) {
	env := newCLIEnv(t)
	err := env.run(t, "build", "--unit", "nope")
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
	assert.Contains(t, err.Error(), "nope")
}

func TestBuild_StrictReportsFailures(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.docs, []byte(strings.Replace(mustRead(t, env.docs), env.source, filepath.Join(env.dir, "missing-repo"), 1)), 0o600))

	err := env.run(t, "build", "--strict")
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryRuntime))
	assert.Contains(t, env.out.String(), "skipped")
	assert.FileExists(t, filepath.Join(env.www, ledger.CurrentFile), "ledger persisted despite skipped unit")
}

func TestStatusAndHistory(t *testing.T) {
	env := newCLIEnv(t)

	require.NoError(t, env.run(t, "status"))
	assert.Contains(t, env.out.String(), "No units recorded")

	require.NoError(t, env.run(t, "build"))
	require.NoError(t, env.run(t, "status"))
	out := env.out.String()
	assert.Contains(t, out, "guide")
	assert.Contains(t, out, "html:success")
	assert.Contains(t, out, "pdf:failed")

	require.NoError(t, env.run(t, "history", "--unit", "guide"))
	out = env.out.String()
	assert.Contains(t, out, "guide")
	assert.Contains(t, out, "built")
}

func TestHistory_NotConfigured(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.main, []byte(fmt.Sprintf("[www]\n\tpath = %s\n", env.www)), 0o600))

	err := env.run(t, "history")
	require.Error(t, err)
	assert.Equal(t, 7, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestValidate(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, env.run(t, "validate"))
	assert.Contains(t, env.out.String(), "Configuration valid: 1 unit(s)")
	assert.Contains(t, env.out.String(), "[html,pdf]")

	bad := strings.Replace(mustRead(t, env.docs), "formats = html,pdf", "formats = html,docx", 1)
	require.NoError(t, os.WriteFile(env.docs, []byte(bad), 0o600))
	err := env.run(t, "validate")
	require.Error(t, err)
	assert.Equal(t, 7, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.Contains(t, env.out.String(), "Configuration invalid")
}

func TestInit(t *testing.T) {
	env := newCLIEnv(t)
	target := filepath.Join(env.dir, "fresh")

	require.NoError(t, env.run(t, "init", "--dir", target))
	assert.Contains(t, env.out.String(), "initialized successfully")
	assert.FileExists(t, filepath.Join(target, config.DefaultMainFile))
	assert.FileExists(t, filepath.Join(target, config.DefaultDocsFile))

	require.Error(t, env.run(t, "init", "--dir", target))
	require.NoError(t, env.run(t, "init", "--dir", target, "--force"))
}

func TestSelectUnits(t *testing.T) {
	units := []config.Unit{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	all, err := selectUnits(units, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := selectUnits(units, []string{"c", "a"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "a", some[0].ID, "configuration order is kept")
	assert.Equal(t, "c", some[1].ID)

	_, err = selectUnits(units, []string{"a", "x", "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x, y")
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
