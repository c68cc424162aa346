// Package version carries build metadata set at link time:
//
//	go build -ldflags "-X git.home.luguber.info/inful/continuousdoc/internal/version.Version=v1.0.0"
package version

import "fmt"

// Version is the release version.
var Version = "unknown"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line shown by --version.
func String() string {
	return fmt.Sprintf("continuousdoc %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
