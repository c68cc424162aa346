// Package ledger keeps the per-unit build record: build numbers, the last built
// revision and per-format outcomes. Each run persists an immutable numbered
// snapshot and repoints the current.json alias at it.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/fsutil"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
)

const (
	CurrentFile = "current.json"
	SnapshotDir = "json"
)

// ErrLedgerIO marks failures to read or write the ledger. They are run-fatal.
var ErrLedgerIO = errors.New("ledger I/O failure")

// ErrUnknownUnit is returned for operations on a unit that was never initialized.
var ErrUnknownUnit = errors.New("unit not in ledger")

// Ledger is the in-memory ledger of one run. It is safe for concurrent use;
// each unit's entry is only mutated by the task processing that unit.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
	logger  *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for ignored updates.
func WithLogger(l *slog.Logger) Option {
	return func(led *Ledger) {
		if l != nil {
			led.logger = l
		}
	}
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{entries: make(map[string]*Entry), logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads <root>/current.json. A missing or dangling alias yields an empty
// ledger; an unreadable or malformed file is an ErrLedgerIO.
func Load(root string, opts ...Option) (*Ledger, error) {
	l := New(opts...)
	path := filepath.Join(root, CurrentFile)

	data, err := os.ReadFile(path) // #nosec G304 -- ledger lives in the configured output tree
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, ioError("failed to read ledger", path, err)
	}

	var raw map[string]*Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ioError("ledger is not valid JSON", path, err)
	}
	for id, e := range raw {
		if e == nil {
			continue
		}
		e.normalize()
		l.entries[id] = e
	}
	return l, nil
}

// EnsureInitialized creates the entry for u on first sight, copying its static
// metadata. Existing entries are returned unchanged.
func (l *Ledger) EnsureInitialized(u config.Unit) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[u.ID]; ok {
		return e.clone()
	}
	e := &Entry{
		Build:    0,
		Version:  u.Version,
		Product:  u.Product,
		Name:     u.Name,
		Language: u.Language,
		Type:     u.Type,
		Format:   map[string]string{},
		Source: Source{
			URL:    u.Source,
			Branch: u.Branch,
			Commit: NoRevision,
		},
		Status: map[string]Outcome{},
	}
	l.entries[u.ID] = e
	l.logger.Info("Initialized ledger entry", logfields.Unit(u.ID))
	return e.clone()
}

// LastBuiltRevision returns the recorded revision, or NoRevision for unknown units.
func (l *Ledger) LastBuiltRevision(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[id]; ok {
		return e.Source.Commit
	}
	return NoRevision
}

// RecordBuildStart increments the unit's build number and returns it. The
// increment is never rolled back, even when every format later fails.
func (l *Ledger) RecordBuildStart(id string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return 0, derrors.InternalError("build started for uninitialized unit").
			WithCause(fmt.Errorf("%w: %s", ErrUnknownUnit, id)).
			WithContext("unit", id).
			Build()
	}
	e.Build++
	return e.Build, nil
}

// RecordFormatResult stores the outcome of one format. Unknown units are logged and ignored.
func (l *Ledger) RecordFormatResult(id string, f config.Format, o Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		l.logger.Warn("Ignoring format result for unknown unit", logfields.Unit(id), logfields.Format(string(f)))
		return
	}
	e.Status[string(f)] = o
}

// RecordSourceRevision marks rev as built at the given time.
func (l *Ledger) RecordSourceRevision(id, rev string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		l.logger.Warn("Ignoring revision for unknown unit", logfields.Unit(id), logfields.Revision(rev))
		return
	}
	e.Source.Commit = rev
	// Build dates are stored at the precision they are written with.
	e.BuildDate = Timestamp{at.UTC().Truncate(time.Second)}
}

// Get returns a copy of one entry.
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Snapshot returns a deep copy of all entries.
func (l *Ledger) Snapshot() map[string]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Entry, len(l.entries))
	for id, e := range l.entries {
		out[id] = e.clone()
	}
	return out
}

// Entries returns the unit ids in the ledger, sorted.
func (l *Ledger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SnapshotPath is the numbered snapshot file of a run.
func SnapshotPath(root string, runNumber int) string {
	return filepath.Join(root, SnapshotDir, strconv.Itoa(runNumber)+".json")
}

// Persist writes the ledger as <root>/json/<runNumber>.json and repoints
// <root>/current.json at it. Numbered snapshots are immutable: an existing
// file for runNumber is an error and is left untouched.
func (l *Ledger) Persist(root string, runNumber int) error {
	l.mu.Lock()
	data, err := json.MarshalIndent(l.entries, "", "  ")
	l.mu.Unlock()
	if err != nil {
		return ioError("failed to encode ledger", root, err)
	}

	dir := filepath.Join(root, SnapshotDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ioError("failed to create snapshot directory", dir, err)
	}
	path := SnapshotPath(root, runNumber)
	if err := fsutil.WriteFileExclusive(path, data, 0o644); err != nil {
		if errors.Is(err, fsutil.ErrExists) {
			return ioError(fmt.Sprintf("snapshot for run %d already exists", runNumber), path, err)
		}
		return ioError("failed to write ledger snapshot", path, err)
	}

	target := filepath.Join(SnapshotDir, strconv.Itoa(runNumber)+".json")
	alias := filepath.Join(root, CurrentFile)
	if err := fsutil.ReplaceSymlink(target, alias); err != nil {
		return ioError("failed to repoint current ledger", alias, err)
	}
	return nil
}

func ioError(message, path string, cause error) error {
	return derrors.LedgerError(message).
		WithCause(fmt.Errorf("%w: %w", ErrLedgerIO, cause)).
		WithContext("path", path).
		Build()
}
