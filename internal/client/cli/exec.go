package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/virtbridge/vmcourier/internal/client"
	"github.com/virtbridge/vmcourier/internal/client/journal"
	"github.com/virtbridge/vmcourier/internal/common"
	"github.com/virtbridge/vmcourier/internal/wire"
)

const (
	// exitUsage is returned for malformed command lines.
	exitUsage = 2
	// exitRemoteFailure is returned when the call itself failed and no
	// remote exit code exists, the docker-exec convention.
	exitRemoteFailure = 125
)

func (a *App) execCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "run a command inside the guest",
		ArgsUsage: "[--] <command line>",
		Description: "The command line is sent verbatim and lexed on the guest, so\n" +
			"quoting works the way the guest shell lexer expects. Local stdin is\n" +
			"forwarded unless --no-stdin is given; a terminal is only forwarded\n" +
			"when asked for with --interactive.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "environment entry KEY=VALUE (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "no-stdin",
				Usage: "do not forward local stdin",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "forward stdin even when it is a terminal",
			},
		},
		Action: a.execAction,
	}
}

func (a *App) execAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: courierctl exec [-e K=V]... [--no-stdin] [--] <command line>", exitUsage)
	}
	command := strings.Join(c.Args().Slice(), " ")

	env, err := parseEnv(c.StringSlice("env"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, cancel := a.opCtx(c)
	defer cancel()

	e := &journal.Entry{
		ID:        uuid.NewString(),
		Verb:      "exec",
		Arguments: command,
		StartedAt: time.Now(),
	}

	cl, conn, err := a.connect(ctx)
	if err != nil {
		e.Status = statusName(err)
		e.FinishedAt = time.Now()
		a.record(e)
		return fmt.Errorf("exec: %w", err)
	}
	defer conn.Close()

	spec := client.ExecSpec{
		Command: command,
		Env:     env,
		Stdout:  c.App.Writer,
		Stderr:  c.App.ErrWriter,
	}
	if forwardStdin(c) {
		spec.Stdin = stdinFile{}
	}

	code, runErr := cl.Run(ctx, spec)

	e.Status = statusName(runErr)
	e.ExitCode = code
	e.FinishedAt = time.Now()
	a.record(e)

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("exec: %v", runErr), exitRemoteFailure)
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// parseEnv turns repeated KEY=VALUE flags into the environment map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad env entry %q, want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

// forwardStdin decides whether local stdin goes to the command. Pipes
// and redirects are always forwarded; a terminal only with
// --interactive, so a plain `courierctl exec ls` does not swallow the
// user's shell input.
func forwardStdin(c *cli.Context) bool {
	if c.Bool("no-stdin") {
		return false
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return c.Bool("interactive")
	}
	return true
}

// statusName recovers the terminal status name for the journal row.
func statusName(err error) string {
	if err == nil {
		return wire.StatusOK.String()
	}
	var se *common.StatusError
	if errors.As(err, &se) {
		return se.Status.String()
	}
	return wire.StatusGRPCFailure.String()
}

// stdinFile adapts the process's standard input to the platform file
// interface. Close is a no-op; fd 0 outlives any single call.
type stdinFile struct{}

func (stdinFile) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdinFile) Write(p []byte) (int, error) { return 0, errors.New("stdin is read-only") }
func (stdinFile) Close() error                { return nil }
