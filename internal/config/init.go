package config

import (
	"fmt"
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
)

const sampleMain = `# continuousdoc main configuration
[www]
# Public output tree; units are published under <path>/<language>/<id>.
path = ./www
# Run counter, incremented before every run.
build = 0

[build]
command = daps
timeout = 30m
concurrency = 1
workspace = ./repos
advance-on-failure = true

[git]
max-retries = 2
retry-backoff = linear
retry-initial-delay = 1s
retry-max-delay = 30s

[log]
level = info
file = log.txt
`

const sampleDocs = `# One section per documentation unit.
[guide]
version = 15
product = SLES
name = Administration Guide
language = en-us
type = guide
source = https://github.com/example/doc-guide.git
branch = main
dc = DC-admin
formats = html,single-html,pdf
`

// Init writes sample main and documentation configs into dir. Existing files
// are only replaced when force is set.
func Init(dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, derrors.FileSystemError("failed to create config directory").WithCause(err).WithContext("dir", dir).Build()
	}
	files := []struct {
		name    string
		content string
	}{
		{DefaultMainFile, sampleMain},
		{DefaultDocsFile, sampleDocs},
	}
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if _, err := os.Stat(p); err == nil && !force {
			return nil, derrors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", p)).
				WithContext("file", p).
				Build()
		}
	}
	written := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if err := os.WriteFile(p, []byte(f.content), 0o600); err != nil {
			return written, derrors.FileSystemError("failed to write sample config").WithCause(err).WithContext("file", p).Build()
		}
		written = append(written, p)
	}
	return written, nil
}
