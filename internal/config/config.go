// Package config loads the main and documentation-unit configuration files.
//
// Both files are sets of named sections with flat key-value options. INI-style
// files follow Python configparser conventions ("=" or ":" delimiters and a
// [DEFAULT] section inherited by every other section); files ending in .yaml
// or .yml are YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/foundation/normalization"
)

const (
	DefaultMainFile  = "main.conf"
	DefaultDocsFile  = "docs.conf"
	DefaultWorkspace = "./repos"
	DefaultCommand   = "daps"
	DefaultLogFile   = "log.txt"

	DefaultBuildTimeout     = 30 * time.Minute
	DefaultConcurrency      = 1
	DefaultMaxRetries       = 2
	DefaultRetryInitial     = time.Second
	DefaultRetryMax         = 30 * time.Second
	DefaultDaemonInterval   = 15 * time.Minute
	DefaultNotifySubject    = "continuousdoc.units"
	DefaultWatchDebounce    = 2 * time.Second
	DefaultHistoryListLimit = 20
)

// Main is the process-wide configuration from the main config file.
type Main struct {
	// Path is the file Main was loaded from; the run counter is written back to it.
	Path string

	WWW     WWWConfig
	Build   BuildConfig
	Git     GitConfig
	Notify  NotifyConfig
	Metrics MetricsConfig
	History HistoryConfig
	Daemon  DaemonConfig
	Log     LogConfig
}

// WWWConfig locates the public output tree and carries the persistent run counter.
type WWWConfig struct {
	Path  string
	Build int
}

type BuildConfig struct {
	Command          string
	Args             []string
	Timeout          time.Duration
	Concurrency      int
	AdvanceOnFailure bool
	Workspace        string
	Index            bool
}

type GitConfig struct {
	MaxRetries         int
	RetryBackoff       RetryBackoffMode
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	HardResetOnDiverge bool
	ShallowDepth       int
}

// NotifyConfig enables NATS unit events when URL is set.
type NotifyConfig struct {
	URL     string
	Subject string
}

// MetricsConfig enables the Prometheus endpoint in daemon mode when Listen is set.
type MetricsConfig struct {
	Listen string
}

// HistoryConfig enables the SQLite unit event log when Path is set.
type HistoryConfig struct {
	Path string
}

type DaemonConfig struct {
	Interval      time.Duration
	WatchDocs     bool
	WatchDebounce time.Duration
}

type LogConfig struct {
	Level  LogLevel
	Format LogFormat
	File   string
}

// Config bundles everything a run needs.
type Config struct {
	Main     *Main
	DocsPath string
	Units    []Unit
}

// Load reads and validates the main and documentation-unit configs.
func Load(mainPath, docsPath string) (*Config, error) {
	m, err := LoadMain(mainPath)
	if err != nil {
		return nil, err
	}
	units, err := LoadUnits(docsPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateUnits(units, m.Build.Concurrency); err != nil {
		return nil, err
	}
	return &Config{Main: m, DocsPath: docsPath, Units: units}, nil
}

// LoadMain reads the main config, applies defaults and validates it.
func LoadMain(path string) (*Main, error) {
	if err := loadEnvFiles(filepath.Dir(path)); err != nil {
		return nil, derrors.ConfigError("failed to load env file").WithCause(err).Build()
	}
	sections, err := readSections(path, decodeMainYAML)
	if err != nil {
		return nil, err
	}
	m := defaultMain()
	m.Path = path
	if err := m.apply(sections); err != nil {
		return nil, derrors.ConfigError(fmt.Sprintf("invalid main config %s", path)).
			WithCause(err).
			WithContext("file", path).
			Build()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadUnits reads the documentation-unit config. Units keep file order.
func LoadUnits(path string) ([]Unit, error) {
	sections, err := readSections(path, decodeUnitsYAML)
	if err != nil {
		return nil, err
	}
	units := make([]Unit, 0, len(sections))
	var problems []error
	for _, s := range sections {
		if strings.EqualFold(s.name, "DEFAULT") {
			continue
		}
		u, err := unitFromSection(s)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		units = append(units, u)
	}
	if len(problems) > 0 {
		return nil, configProblems(fmt.Sprintf("invalid documentation config %s", path), problems)
	}
	return units, nil
}

func readSections(path string, yamlDecoder func([]byte) ([]section, error)) ([]section, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, derrors.ConfigError(fmt.Sprintf("configuration file not found: %s", path)).
			WithContext("file", path).
			Build()
	}
	data, err := readExpanded(path)
	if err != nil {
		return nil, derrors.ConfigError("failed to read config file").WithCause(err).WithContext("file", path).Build()
	}
	decode := decodeINI
	if isYAML(path) {
		decode = yamlDecoder
	}
	sections, err := decode(data)
	if err != nil {
		return nil, derrors.ConfigError(fmt.Sprintf("failed to parse %s", path)).WithCause(err).WithContext("file", path).Build()
	}
	return sections, nil
}

func defaultMain() *Main {
	return &Main{
		Build: BuildConfig{
			Command:          DefaultCommand,
			Timeout:          DefaultBuildTimeout,
			Concurrency:      DefaultConcurrency,
			AdvanceOnFailure: true,
			Workspace:        DefaultWorkspace,
			Index:            true,
		},
		Git: GitConfig{
			MaxRetries:        DefaultMaxRetries,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: DefaultRetryInitial,
			RetryMaxDelay:     DefaultRetryMax,
		},
		Notify: NotifyConfig{Subject: DefaultNotifySubject},
		Daemon: DaemonConfig{
			Interval:      DefaultDaemonInterval,
			WatchDocs:     true,
			WatchDebounce: DefaultWatchDebounce,
		},
		Log: LogConfig{Level: LogLevelInfo, Format: LogFormatText, File: DefaultLogFile},
	}
}

// apply overlays the options of known sections onto m. Unknown sections are ignored.
func (m *Main) apply(sections []section) error {
	var p optionParser
	for _, s := range sections {
		switch strings.ToLower(s.name) {
		case "www":
			p.str(s, "path", &m.WWW.Path)
			p.integer(s, "build", &m.WWW.Build)
		case "build":
			p.str(s, "command", &m.Build.Command)
			if v := s.get("args"); v != "" {
				m.Build.Args = strings.Fields(v)
			}
			p.duration(s, "timeout", &m.Build.Timeout)
			p.integer(s, "concurrency", &m.Build.Concurrency)
			p.boolean(s, "advance-on-failure", &m.Build.AdvanceOnFailure)
			p.str(s, "workspace", &m.Build.Workspace)
			p.boolean(s, "index", &m.Build.Index)
		case "git":
			p.integer(s, "max-retries", &m.Git.MaxRetries)
			p.enum(s, "retry-backoff", func(v string) error {
				mode, err := ParseRetryBackoff(v)
				m.Git.RetryBackoff = mode
				return err
			})
			p.duration(s, "retry-initial-delay", &m.Git.RetryInitialDelay)
			p.duration(s, "retry-max-delay", &m.Git.RetryMaxDelay)
			p.boolean(s, "hard-reset-on-diverge", &m.Git.HardResetOnDiverge)
			p.integer(s, "shallow-depth", &m.Git.ShallowDepth)
		case "notify":
			p.str(s, "url", &m.Notify.URL)
			p.str(s, "subject", &m.Notify.Subject)
		case "metrics":
			p.str(s, "listen", &m.Metrics.Listen)
		case "history":
			p.str(s, "path", &m.History.Path)
		case "daemon":
			p.duration(s, "interval", &m.Daemon.Interval)
			p.boolean(s, "watch-docs", &m.Daemon.WatchDocs)
			p.duration(s, "watch-debounce", &m.Daemon.WatchDebounce)
		case "log":
			p.enum(s, "level", func(v string) error {
				level, err := ParseLogLevel(v)
				m.Log.Level = level
				return err
			})
			p.enum(s, "format", func(v string) error {
				format, err := ParseLogFormat(v)
				m.Log.Format = format
				return err
			})
			if _, ok := s.options["file"]; ok {
				m.Log.File = s.get("file")
			}
		}
	}
	return p.err()
}

func unitFromSection(s section) (Unit, error) {
	u := Unit{
		ID:       strings.TrimSpace(s.name),
		Version:  s.get("version"),
		Product:  s.get("product"),
		Name:     s.get("name"),
		Language: s.get("language"),
		Type:     s.get("type"),
		Source:   s.get("source"),
		Branch:   s.get("branch"),
		DC:       s.get("dc"),
	}
	formats, err := ParseFormats(s.get("formats"))
	if err != nil {
		return u, fmt.Errorf("unit %s: %w", u.ID, err)
	}
	u.Formats = formats
	return u, nil
}

// optionParser collects per-key conversion errors so one pass reports all of them.
type optionParser struct {
	errs []error
}

func (p *optionParser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *optionParser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return errors.Join(p.errs...)
}

func (p *optionParser) str(s section, key string, dst *string) {
	if v := s.get(key); v != "" {
		*dst = v
	}
}

func (p *optionParser) integer(s section, key string, dst *int) {
	v := s.get(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(s.name+"."+key, err)
		return
	}
	*dst = n
}

var boolNormalizer = normalization.NewNormalizer("boolean", map[string]bool{
	"1": true, "yes": true, "true": true, "on": true,
	"0": false, "no": false, "false": false, "off": false,
}, false)

func (p *optionParser) boolean(s section, key string, dst *bool) {
	v := s.get(key)
	if v == "" {
		return
	}
	b, err := boolNormalizer.Parse(v)
	if err != nil {
		p.fail(s.name+"."+key, err)
		return
	}
	*dst = b
}

func (p *optionParser) enum(s section, key string, parse func(string) error) {
	if v := s.get(key); v != "" {
		if err := parse(v); err != nil {
			p.fail(s.name+"."+key, err)
		}
	}
}

func (p *optionParser) duration(s section, key string, dst *time.Duration) {
	v := s.get(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(s.name+"."+key, err)
		return
	}
	*dst = d
}
