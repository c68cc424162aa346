package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/continuousdoc/cmd/continuousdoc/commands"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"git.home.luguber.info/inful/continuousdoc/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("continuousdoc"),
		kong.Description("Continuously rebuild and publish documentation units from their git sources."),
		kong.UsageOnError(),
		kong.Bind(global),
		kong.Vars{"version": version.String()},
	)

	err := parser.Run(global, cli)
	if closeErr := global.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		derrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
