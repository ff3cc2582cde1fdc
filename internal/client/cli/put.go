package cli

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/virtbridge/vmcourier/internal/client"
)

func (a *App) putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "copy a file into the guest",
		ArgsUsage: "<local> <remote>",
		Action:    a.putAction,
	}
}

func (a *App) putAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: courierctl put <local> <remote>", exitUsage)
	}
	local, remote := c.Args().Get(0), c.Args().Get(1)

	return a.runTransfer(c, "put", local+" -> "+remote,
		func(ctx context.Context, cl *client.Client) (client.Result, error) {
			return cl.Put(ctx, local, remote)
		})
}
