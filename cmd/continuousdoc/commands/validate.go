package commands

import (
	"git.home.luguber.info/inful/continuousdoc/internal/config"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct{}

func (v *ValidateCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config, root.Docs)
	if err != nil {
		g.printf("Configuration invalid\n")
		return err
	}
	g.printf("Configuration valid: %d unit(s), output %s\n", len(cfg.Units), cfg.Main.WWW.Path)
	for _, u := range cfg.Units {
		g.printf("  %-20s %-8s %s@%s [%s]\n", u.ID, u.Language, u.Source, u.Branch, u.FormatList())
	}
	return nil
}
