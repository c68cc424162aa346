package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/continuousdoc/internal/foundation/normalization"
	giturls "github.com/whilp/git-urls"
)

// Format is one output representation produced by the document builder.
type Format string

const (
	FormatHTML       Format = "html"
	FormatSingleHTML Format = "single-html"
	FormatPDF        Format = "pdf"
	FormatEPUB       Format = "epub"
)

var formatNormalizer = normalization.NewNormalizer("format", map[string]Format{
	"html":        FormatHTML,
	"single-html": FormatSingleHTML,
	"pdf":         FormatPDF,
	"epub":        FormatEPUB,
}, "")

// ParseFormat converts a configured format keyword into a Format.
func ParseFormat(raw string) (Format, error) {
	return formatNormalizer.Parse(raw)
}

// ParseFormats splits a comma-separated format list, keeping the configured order.
// Empty items are ignored; unknown or repeated formats are an error.
func ParseFormats(raw string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]bool)
	for item := range strings.SplitSeq(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		f, err := ParseFormat(item)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			return nil, fmt.Errorf("format %q listed twice", f)
		}
		seen[f] = true
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no formats configured")
	}
	return formats, nil
}

// Subdir is the directory name a format is published under inside a build directory.
func (f Format) Subdir() string { return string(f) }

// Unit is one documentation unit: a source repository producing one set of documents.
// Units are immutable for the duration of a run.
type Unit struct {
	ID       string
	Version  string
	Product  string
	Name     string
	Language string
	Type     string
	Source   string
	Branch   string
	DC       string
	Formats  []Format
}

// CheckoutName returns the working checkout directory name, derived from the
// repository's own name (last path element of the source URL without ".git").
func (u Unit) CheckoutName() (string, error) {
	parsed, err := giturls.Parse(u.Source)
	if err != nil {
		return "", fmt.Errorf("parse source URL %q: %w", u.Source, err)
	}
	p := strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), ".git")
	name := path.Base(p)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("source URL %q has no repository name", u.Source)
	}
	return name, nil
}

// PublishRoot is the unit's directory in the public output tree: <www>/<language>/<id>.
func (u Unit) PublishRoot(wwwPath string) string {
	return filepath.Join(wwwPath, u.Language, u.ID)
}

// FormatList renders the formats back into their configured comma-separated form.
func (u Unit) FormatList() string {
	parts := make([]string, len(u.Formats))
	for i, f := range u.Formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
