// Package index renders the landing page listing every published unit.
package index

import (
	"bytes"
	"fmt"
	"html"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/continuousdoc/internal/fsutil"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
	"git.home.luguber.info/inful/continuousdoc/internal/publish"
)

// FileName is the page written at the root of the output tree.
const FileName = "index.html"

const page = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`

// Markdown lists the ledger entries grouped by language. Only formats whose
// last build succeeded are linked.
func Markdown(title string, entries map[string]ledger.Entry) []byte {
	byLang := map[string][]string{}
	for id, e := range entries {
		byLang[e.Language] = append(byLang[e.Language], id)
	}
	langs := make([]string, 0, len(byLang))
	for l := range byLang {
		langs = append(langs, l)
	}
	slices.Sort(langs)

	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n", escape(title))
	for _, lang := range langs {
		ids := byLang[lang]
		slices.Sort(ids)
		fmt.Fprintf(&b, "\n## %s\n\n", escape(lang))
		b.WriteString("| Product | Version | Document | Build | Updated | Formats |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, id := range ids {
			e := entries[id]
			updated := "never"
			if !e.BuildDate.IsZero() {
				updated = e.BuildDate.UTC().Format("2006-01-02 15:04 UTC")
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
				escape(e.Product), escape(e.Version), escape(e.Name), e.Build, updated, formatLinks(id, e))
		}
	}
	return b.Bytes()
}

func formatLinks(id string, e ledger.Entry) string {
	formats := make([]string, 0, len(e.Status))
	for f, o := range e.Status {
		if o == ledger.OutcomeSuccess {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return "-"
	}
	slices.Sort(formats)
	links := make([]string, 0, len(formats))
	for _, f := range formats {
		href := path.Join(e.Language, id, publish.CurrentLink, f) + "/"
		links = append(links, fmt.Sprintf("[%s](%s)", escape(f), href))
	}
	return strings.Join(links, " ")
}

// Render converts the listing to a standalone HTML page.
func Render(title string, entries map[string]ledger.Entry) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert(Markdown(title, entries), &body); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	return fmt.Appendf(nil, page, html.EscapeString(title), body.String()), nil
}

// Write renders the page into <www>/index.html.
func Write(www, title string, entries map[string]ledger.Entry) (string, error) {
	out, err := Render(title, entries)
	if err != nil {
		return "", err
	}
	p := filepath.Join(www, FileName)
	if err := fsutil.WriteFileAtomic(p, out, 0o644); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	return p, nil
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`,
	`<`, `\<`, `>`, `\>`, `|`, `\|`, `#`, `\#`,
)

func escape(s string) string { return mdEscaper.Replace(s) }
