package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/virtbridge/vmcourier/internal/buildinfo"
)

func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print build information",
		Action: func(c *cli.Context) error {
			buildinfo.PrintBuildData(c.App.Writer)
			return nil
		},
	}
}
