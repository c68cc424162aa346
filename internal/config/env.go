package config

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFileNames are looked up next to the main config file and in the working directory.
var envFileNames = []string{".env", ".env.local"}

// loadEnvFiles loads KEY=VALUE files into the process environment. Existing
// variables are never overwritten and missing files are ignored.
func loadEnvFiles(configDir string) error {
	seen := make(map[string]bool)
	for _, dir := range []string{configDir, "."} {
		for _, name := range envFileNames {
			p := filepath.Clean(filepath.Join(dir, name))
			if seen[p] {
				continue
			}
			seen[p] = true
			if err := godotenv.Load(p); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
		}
	}
	return nil
}
