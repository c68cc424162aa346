package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
)

// Manager owns the directory holding one working checkout per source repository.
// Checkouts persist across runs so later runs only fetch.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager creates a manager rooted at dir. An empty dir means "./repos".
func NewManager(dir string, logger *slog.Logger) *Manager {
	if dir == "" {
		dir = "./repos"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: dir, logger: logger}
}

// Create ensures the workspace root exists.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	m.logger.Debug("Using workspace", logfields.Path(m.root))
	return nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// CheckoutPath returns the directory of the named checkout. Names are single
// path elements; anything that would escape the root is rejected.
func (m *Manager) CheckoutPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid checkout name %q", name)
	}
	return filepath.Join(m.root, name), nil
}

// HasCheckout reports whether the named checkout holds a git repository.
func (m *Manager) HasCheckout(name string) bool {
	p, err := m.CheckoutPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(p, ".git"))
	return err == nil
}

// Discard removes a checkout, e.g. after an interrupted clone.
func (m *Manager) Discard(name string) error {
	p, err := m.CheckoutPath(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to remove checkout: %w", err)
	}
	m.logger.Debug("Removed checkout", logfields.Path(p))
	return nil
}
