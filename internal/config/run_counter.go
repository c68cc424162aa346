package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// NextRunNumber increments the persistent run counter (www.build) in the main
// config file, writes the file back and returns the new value. It is called
// exactly once per run, before any unit is processed.
func NextRunNumber(path string) (int, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return 0, derrors.ConfigError("failed to read run counter").WithCause(err).WithContext("file", path).Build()
	}

	bump := bumpINI
	if isYAML(path) {
		bump = bumpYAML
	}
	next, out, err := bump(data)
	if err != nil {
		return 0, derrors.ConfigError("failed to update run counter").WithCause(err).WithContext("file", path).Build()
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := fsutil.WriteFileAtomic(path, out, mode); err != nil {
		return 0, derrors.FileSystemError("failed to persist run counter").
			WithCause(err).
			WithContext("file", path).
			Fatal().
			Build()
	}
	return next, nil
}

// bumpINI rewrites the file through the INI codec, which keeps comments and
// section order.
func bumpINI(data []byte) (int, []byte, error) {
	f, err := loadINI(data)
	if err != nil {
		return 0, nil, err
	}
	www := f.Section("www")
	next, err := incrementCounter(www.Key("build").String())
	if err != nil {
		return 0, nil, err
	}
	www.Key("build").SetValue(strconv.Itoa(next))

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return 0, nil, err
	}
	return next, buf.Bytes(), nil
}

// bumpYAML edits the document tree so comments and key order survive the write.
func bumpYAML(data []byte) (int, []byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, nil, err
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return 0, nil, fmt.Errorf("main config must be a mapping of sections")
	}
	www := mappingChild(doc.Content[0], "www", yaml.MappingNode)
	if www.Kind != yaml.MappingNode {
		return 0, nil, fmt.Errorf("www must be a mapping")
	}
	counter := mappingChild(www, "build", yaml.ScalarNode)
	next, err := incrementCounter(counter.Value)
	if err != nil {
		return 0, nil, err
	}
	counter.Kind = yaml.ScalarNode
	counter.Tag = "!!int"
	counter.Value = strconv.Itoa(next)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return 0, nil, err
	}
	if err := enc.Close(); err != nil {
		return 0, nil, err
	}
	return next, buf.Bytes(), nil
}

// mappingChild returns the value node for key, appending an empty one of kind if absent.
func mappingChild(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if strings.EqualFold(m.Content[i].Value, key) {
			return m.Content[i+1]
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: kind}
	m.Content = append(m.Content, k, v)
	return v
}

func incrementCounter(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("www.build is not a number: %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("www.build must not be negative: %d", n)
	}
	return n + 1, nil
}
