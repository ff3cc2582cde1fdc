package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/virtbridge/vmcourier/internal/client/journal"
)

func (a *App) historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recent operations from the journal",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "maximum entries to list",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "only operations that did not end OK",
			},
		},
		Action: a.historyAction,
	}
}

func (a *App) historyAction(c *cli.Context) error {
	ctx, cancel := a.opCtx(c)
	defer cancel()

	path, err := a.journalPath()
	if err != nil {
		return err
	}
	db, err := journal.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", path, err)
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(ctx, c.Int("limit"), c.Bool("failed"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 2, 0, 3, ' ', 0)
	fmt.Fprintf(w, "STARTED\tVERB\tARGUMENTS\tSTATUS\tEXIT\tBYTES\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Verb, e.Arguments, e.Status, e.ExitCode, e.Bytes)
	}
	return w.Flush()
}
