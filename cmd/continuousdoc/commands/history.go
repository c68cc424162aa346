package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Unit  string `short:"u" help:"Only show events of this unit"`
	Limit int    `short:"n" help:"Maximum number of events" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	m, err := config.LoadMain(root.Config)
	if err != nil {
		return err
	}
	if m.History.Path == "" {
		return derrors.ConfigError("build history is not configured").
			WithContext("hint", "set [history] path in "+root.Config).
			Build()
	}
	store, err := history.NewSQLiteStore(m.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	limit := h.Limit
	if limit <= 0 {
		limit = config.DefaultHistoryListLimit
	}
	events, err := store.List(context.Background(), h.Unit, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		g.printf("No recorded events\n")
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		build := "-"
		if e.Build > 0 {
			build = fmt.Sprint(e.Build)
		}
		rows = append(rows, []string{
			e.Time.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprint(e.RunNumber),
			e.Unit,
			e.Outcome,
			build,
			shortRevision(e.Revision),
			eventFormats(e.Formats),
			e.Error,
		})
	}
	g.printf("%s\n", renderTable([]string{"Time", "Run", "Unit", "Outcome", "Build", "Revision", "Formats", "Error"}, rows))
	return nil
}

func eventFormats(formats map[string]string) string {
	if len(formats) == 0 {
		return ""
	}
	keys := make([]string, 0, len(formats))
	for f := range formats {
		keys = append(keys, f)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, f := range keys {
		parts[i] = f + ":" + formats[f]
	}
	return strings.Join(parts, " ")
}
