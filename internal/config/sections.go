package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// section is the format-neutral view of one "[name] key = value" block.
type section struct {
	name    string
	options map[string]string
}

func (s section) get(key string) string {
	return strings.TrimSpace(s.options[strings.ToLower(key)])
}

// isYAML reports whether a config file should be decoded as YAML; anything else
// is treated as an INI-style key-value file.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// readExpanded reads a config file and expands ${VAR} references.
func readExpanded(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return nil, err
	}
	return []byte(os.ExpandEnv(string(data))), nil
}

// iniOptions match configparser: both delimiters, values taken verbatim
// (no inline comments) and repeated sections kept apart so duplicate unit
// ids reach validation.
var iniOptions = ini.LoadOptions{
	AllowNonUniqueSections: true,
	AllowBooleanKeys:       true,
	IgnoreInlineComment:    true,
	KeyValueDelimiters:     "=:",
}

func loadINI(data []byte) (*ini.File, error) {
	return ini.LoadSources(iniOptions, data)
}

// decodeINI parses configparser-style sections in file order. Options of the
// DEFAULT section are inherited by every other section.
func decodeINI(data []byte) ([]section, error) {
	f, err := loadINI(data)
	if err != nil {
		return nil, err
	}
	defaults := map[string]string{}
	if d, err := f.GetSection(ini.DefaultSection); err == nil {
		for _, k := range d.Keys() {
			defaults[strings.ToLower(k.Name())] = k.Value()
		}
	}
	out := make([]section, 0, len(f.Sections()))
	for _, s := range f.Sections() {
		if s.Name() == ini.DefaultSection {
			continue
		}
		sec := section{name: s.Name(), options: make(map[string]string, len(defaults)+len(s.Keys()))}
		for k, v := range defaults {
			sec.options[k] = v
		}
		for _, k := range s.Keys() {
			sec.options[strings.ToLower(k.Name())] = k.Value()
		}
		out = append(out, sec)
	}
	return out, nil
}

// decodeMainYAML parses a YAML main config: a mapping of section name to a flat mapping.
func decodeMainYAML(data []byte) ([]section, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]section, 0, len(raw))
	for name, opts := range raw {
		out = append(out, section{name: name, options: lowerKeys(opts)})
	}
	return out, nil
}

// decodeUnitsYAML parses a YAML units config: a "units" list whose items carry an "id".
func decodeUnitsYAML(data []byte) ([]section, error) {
	var raw struct {
		Units []map[string]string `yaml:"units"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]section, 0, len(raw.Units))
	for i, opts := range raw.Units {
		opts = lowerKeys(opts)
		id := strings.TrimSpace(opts["id"])
		if id == "" {
			return nil, fmt.Errorf("units[%d]: id is required", i)
		}
		out = append(out, section{name: id, options: opts})
	}
	return out, nil
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
