package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/observability"
)

// LogLevelEnv overrides the configured log level when -v is not given.
const LogLevelEnv = "CONTINUOUSDOC_LOG_LEVEL"

// Global is shared state passed to every command.
type Global struct {
	Logger *slog.Logger
	// Out receives user-facing output; defaults to os.Stdout.
	Out io.Writer
	// Console is the log sink; defaults to os.Stderr.
	Console io.Writer

	closeLog func() error
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Main configuration file" default:"main.conf" type:"path"`
	Docs    string           `short:"d" help:"Documentation units configuration file" default:"docs.conf" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" help:"Rebuild every documentation unit whose source changed"`
	Status   StatusCmd   `cmd:"" help:"Show the current build ledger"`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration files"`
	Init     InitCmd     `cmd:"" help:"Write sample configuration files"`
	Daemon   DaemonCmd   `cmd:"" help:"Run builds on a schedule"`
	History  HistoryCmd  `cmd:"" help:"List recorded unit build events"`
}

// AfterApply runs after flag parsing and sets up a console logger. Commands
// that load the main config replace it via configureLogging.
func (c *CLI) AfterApply(g *Global) error {
	if g.Out == nil {
		g.Out = os.Stdout
	}
	level := config.LogLevelInfo
	if env := os.Getenv(LogLevelEnv); env != "" {
		level = config.NormalizeLogLevel(env)
	}
	if c.Verbose {
		level = config.LogLevelDebug
	}
	logger, _, err := observability.NewLogger(observability.LoggerOptions{Level: level.SlogLevel(), Console: g.Console})
	if err != nil {
		return err
	}
	g.Logger = logger
	slog.SetDefault(logger)
	return nil
}

// configureLogging applies the [log] section: format, level and log file.
// Precedence for the level is -v, then the environment, then the config.
func (g *Global) configureLogging(cfg config.LogConfig, verbose bool) error {
	level := cfg.Level
	if env := os.Getenv(LogLevelEnv); env != "" {
		level = config.NormalizeLogLevel(env)
	}
	if verbose {
		level = config.LogLevelDebug
	}
	logger, closeFn, err := observability.NewLogger(observability.LoggerOptions{
		Level:   level.SlogLevel(),
		JSON:    cfg.Format == config.LogFormatJSON,
		File:    cfg.File,
		Console: g.Console,
	})
	if err != nil {
		return fmt.Errorf("open log file %s: %w", cfg.File, err)
	}
	if err := g.Close(); err != nil {
		logger.Warn("Failed to close previous log file", slog.String("error", err.Error()))
	}
	g.Logger = logger
	g.closeLog = closeFn
	slog.SetDefault(logger)
	return nil
}

// Close releases the log file, if one is open.
func (g *Global) Close() error {
	if g.closeLog == nil {
		return nil
	}
	err := g.closeLog()
	g.closeLog = nil
	return err
}

func (g *Global) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(g.Out, format, args...)
}

// loadConfig loads both config files and configures logging from the result.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config, root.Docs)
	if err != nil {
		return nil, err
	}
	if err := g.configureLogging(cfg.Main.Log, root.Verbose); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectUnits keeps the units named in ids, in configuration order.
func selectUnits(units []config.Unit, ids []string) ([]config.Unit, error) {
	if len(ids) == 0 {
		return units, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []config.Unit
	for _, u := range units {
		if want[u.ID] {
			out = append(out, u)
			delete(want, u.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for id := range want {
			missing = append(missing, id)
		}
		slices.Sort(missing)
		return nil, derrors.ValidationError("unknown unit(s): "+strings.Join(missing, ", ")).
			WithContext("units", missing).
			Build()
	}
	return out, nil
}
