package cli

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/virtbridge/vmcourier/internal/client"
)

func (a *App) getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "copy a file out of the guest",
		ArgsUsage: "<remote> <local>",
		Action:    a.getAction,
	}
}

func (a *App) getAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: courierctl get <remote> <local>", exitUsage)
	}
	remote, local := c.Args().Get(0), c.Args().Get(1)

	return a.runTransfer(c, "get", remote+" -> "+local,
		func(ctx context.Context, cl *client.Client) (client.Result, error) {
			return cl.Get(ctx, remote, local)
		})
}
