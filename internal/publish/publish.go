// Package publish moves build artifacts into the served output tree and
// maintains each unit's "current" pointer.
//
// Layout:
//
//	<www>/<language>/<unit>/<build>/<format>/<file artifact>
//	<www>/<language>/<unit>/<build>/<format>/...   (contents of a directory artifact)
//	<www>/<language>/<unit>/current -> <build>
package publish

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/fsutil"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
)

// CurrentLink is the name of the per-unit pointer to the latest build.
const CurrentLink = "current"

// ErrPublish marks failures to place output in the served tree.
var ErrPublish = errors.New("publish failed")

// Publisher places artifacts on the local filesystem.
type Publisher struct {
	logger *slog.Logger
	rename func(oldpath, newpath string) error
}

// New creates a publisher.
func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger, rename: os.Rename}
}

// Publish moves artifact into destDir and returns the published path. A file
// keeps its base name inside destDir. A directory, as daps produces for the
// HTML formats, becomes destDir itself so its index page sits directly under
// the format directory. Whatever destDir held before is replaced. Moves across
// filesystems fall back to copy and remove.
func (p *Publisher) Publish(artifact, destDir string) (string, error) {
	artifact = filepath.Clean(artifact)
	info, err := os.Lstat(artifact)
	if err != nil {
		return "", publishError("artifact not found", artifact, err)
	}

	dest := filepath.Join(destDir, filepath.Base(artifact))
	parent := destDir
	if info.IsDir() {
		dest = destDir
		parent = filepath.Dir(destDir)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", publishError("failed to create destination", parent, err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return "", publishError("failed to replace previous artifact", dest, err)
	}

	err = p.rename(artifact, dest)
	if err != nil && errors.Is(err, syscall.EXDEV) {
		p.logger.Debug("Cross-device move, copying artifact", logfields.Artifact(artifact), logfields.Path(dest))
		err = moveByCopy(artifact, dest)
	}
	if err != nil {
		return "", publishError("failed to move artifact", dest, err)
	}
	p.logger.Debug("Published artifact", logfields.Artifact(dest))
	return dest, nil
}

// PublishCurrentPointer repoints <unitRoot>/current at versionedDir using a
// relative link. versionedDir is created when absent so the pointer never
// dangles. On failure the previous pointer is left in place.
func (p *Publisher) PublishCurrentPointer(unitRoot, versionedDir string) error {
	if err := os.MkdirAll(versionedDir, 0o755); err != nil {
		return publishError("failed to create build directory", versionedDir, err)
	}
	target, err := filepath.Rel(unitRoot, versionedDir)
	if err != nil {
		return publishError("build directory is not below unit root", versionedDir, err)
	}
	link := filepath.Join(unitRoot, CurrentLink)
	if err := fsutil.ReplaceSymlink(target, link); err != nil {
		return publishError("failed to repoint current build", link, err)
	}
	p.logger.Debug("Moved current pointer", logfields.Path(link), slog.String("target", target))
	return nil
}

func moveByCopy(src, dst string) error {
	if err := fsutil.CopyTree(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("copy: %w", err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

func publishError(message, path string, cause error) error {
	return derrors.PublishError(message).
		WithCause(fmt.Errorf("%w: %w", ErrPublish, cause)).
		WithContext("path", path).
		Build()
}
