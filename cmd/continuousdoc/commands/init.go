package commands

import (
	"git.home.luguber.info/inful/continuousdoc/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool   `help:"Overwrite existing configuration files"`
	Dir   string `help:"Directory to write the configuration files to" default:"." type:"path"`
}

func (i *InitCmd) Run(g *Global, _ *CLI) error {
	g.printf("Initializing continuousdoc configuration in %s\n", i.Dir)
	written, err := config.Init(i.Dir, i.Force)
	if err != nil {
		g.printf("Initialization failed\n")
		return err
	}
	for _, p := range written {
		g.printf("  wrote %s\n", p)
	}
	g.printf("initialized successfully\n")
	return nil
}
