package commands

import (
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct{}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	m, err := config.LoadMain(root.Config)
	if err != nil {
		return err
	}
	led, err := ledger.Load(m.WWW.Path, ledger.WithLogger(g.Logger))
	if err != nil {
		return err
	}
	ids := led.Entries()
	if len(ids) == 0 {
		g.printf("No units recorded in %s\n", m.WWW.Path)
		return nil
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		e, _ := led.Get(id)
		rows = append(rows, []string{
			id,
			e.Language,
			e.Version,
			fmt.Sprint(e.Build),
			shortRevision(e.Source.Commit),
			buildDate(e),
			formatStatus(e.Status),
		})
	}
	g.printf("Run %d, ledger %s\n", m.WWW.Build, m.WWW.Path)
	g.printf("%s\n", renderTable([]string{"Unit", "Language", "Version", "Build", "Revision", "Built", "Formats"}, rows))
	return nil
}

func buildDate(e ledger.Entry) string {
	if e.BuildDate.IsZero() {
		return "never"
	}
	return e.BuildDate.UTC().Format("2006-01-02 15:04")
}

func formatStatus(status map[string]ledger.Outcome) string {
	if len(status) == 0 {
		return "-"
	}
	formats := make([]string, 0, len(status))
	for f := range status {
		formats = append(formats, f)
	}
	slices.Sort(formats)
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = f + ":" + string(status[f])
	}
	return strings.Join(parts, " ")
}
