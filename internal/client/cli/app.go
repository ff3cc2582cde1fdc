// Package cli implements the courierctl command set. Each command
// dials the guest agent, drives one call state machine from the client
// package and records the outcome in the operation journal.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"

	"github.com/virtbridge/vmcourier/internal/buildinfo"
	"github.com/virtbridge/vmcourier/internal/client"
	"github.com/virtbridge/vmcourier/internal/client/config"
	"github.com/virtbridge/vmcourier/internal/client/journal"
	"github.com/virtbridge/vmcourier/internal/filex"
	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/netx"
	"github.com/virtbridge/vmcourier/internal/platform"
)

// App wires the courierctl commands around one Config. Command-line
// flags layer on top of the config: every global flag defaults to the
// configured value, so a flag given on the command line wins.
type App struct {
	cfg    *config.Config
	logger logging.Logger
	app    *cli.App
}

func NewApp(cfg *config.Config) *App {
	a := &App{cfg: cfg, logger: logging.NewNop()}
	a.app = &cli.App{
		Name:    "courierctl",
		Usage:   "move files and run commands inside a guest VM",
		Version: buildinfo.Version(),
		Flags:   a.globalFlags(),
		Before:  a.before,
		Commands: []*cli.Command{
			a.getCommand(),
			a.putCommand(),
			a.execCommand(),
			a.historyCommand(),
			a.versionCommand(),
		},
	}
	return a
}

// Run executes one command line. An interrupt cancels the in-flight
// operation; the call machinery unwinds through context cancellation.
func (a *App) Run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.app.RunContext(ctx, args)
}

func (a *App) globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a JSON config file",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "agent endpoint URL (vsock://cid:port, tcp://host:port, unix:///path); wins over --cid/--port",
			Value: a.cfg.Endpoint,
		},
		&cli.UintFlag{
			Name:  "cid",
			Usage: "guest vsock context id",
			Value: uint(a.cfg.CID),
		},
		&cli.UintFlag{
			Name:  "port",
			Usage: "agent vsock port",
			Value: uint(a.cfg.Port),
		},
		&cli.IntFlag{
			Name:  "fragment-size",
			Usage: "payload bound for streamed fragments, bytes",
			Value: a.cfg.FragmentSize,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-operation deadline, 0 disables",
			Value: a.cfg.Timeout,
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "reachability probe attempts before the first call",
			Value: a.cfg.DialRetries,
		},
		&cli.StringFlag{
			Name:  "journal",
			Usage: "operation journal path",
			Value: a.cfg.JournalPath,
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "debug logging",
		},
	}
}

// before copies the parsed global flags back into the config. Flags
// default to the config values, so unset flags round-trip unchanged.
func (a *App) before(c *cli.Context) error {
	a.cfg.Endpoint = c.String("endpoint")
	a.cfg.CID = uint32(c.Uint("cid"))
	a.cfg.Port = uint32(c.Uint("port"))
	a.cfg.FragmentSize = c.Int("fragment-size")
	a.cfg.Timeout = c.Duration("timeout")
	a.cfg.DialRetries = c.Int("retries")
	a.cfg.JournalPath = c.String("journal")
	if c.Bool("verbose") {
		a.cfg.LogLevel = "debug"
	}
	a.logger = logging.NewText(os.Stderr, logging.ParseLevel(a.cfg.LogLevel))
	return nil
}

// opCtx derives the context one operation runs under, applying the
// configured deadline.
func (a *App) opCtx(c *cli.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(c.Context, a.cfg.Timeout)
	}
	return context.WithCancel(c.Context)
}

// connect dials the agent and builds a transfer client on the
// connection. The caller closes the returned connection.
func (a *App) connect(ctx context.Context) (*client.Client, *grpc.ClientConn, error) {
	ep, err := a.cfg.DialEndpoint()
	if err != nil {
		return nil, nil, err
	}
	conn, err := netx.Dial(ctx, ep, uint64(a.cfg.DialRetries), a.cfg.DialBackoff)
	if err != nil {
		return nil, nil, err
	}
	return client.New(conn, platform.NewOS(nil), a.logger, a.cfg.FragmentSize), conn, nil
}

// runTransfer is the shared driver for get and put: dial, run the
// operation, journal the outcome, report.
func (a *App) runTransfer(c *cli.Context, verb, arguments string,
	op func(ctx context.Context, cl *client.Client) (client.Result, error)) error {

	ctx, cancel := a.opCtx(c)
	defer cancel()

	e := &journal.Entry{
		ID:        uuid.NewString(),
		Verb:      verb,
		Arguments: arguments,
		StartedAt: time.Now(),
	}

	cl, conn, err := a.connect(ctx)
	if err != nil {
		e.Status = statusName(err)
		e.FinishedAt = time.Now()
		a.record(e)
		return fmt.Errorf("%s: %w", verb, err)
	}
	defer conn.Close()

	res, err := op(ctx, cl)

	e.Status = res.Status.String()
	e.Bytes = res.Bytes
	e.FinishedAt = time.Now()
	a.record(e)

	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	fmt.Fprintf(c.App.Writer, "%s (%d bytes)\n", arguments, res.Bytes)
	return nil
}

// journalPath resolves the journal location: the configured path or a
// file under the user state directory.
func (a *App) journalPath() (string, error) {
	if a.cfg.JournalPath != "" {
		return a.cfg.JournalPath, nil
	}
	dir, err := filex.StateDir("courierctl")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// journalKeep bounds how many operations the journal retains.
const journalKeep = 1000

// record journals one finished operation. The journal is an audit
// trail, not part of an operation: failures here are logged and
// swallowed, and recording runs on a fresh context so a canceled
// operation still leaves its row.
func (a *App) record(e *journal.Entry) {
	ctx := context.Background()

	path, err := a.journalPath()
	if err != nil {
		a.logger.Warn(ctx, "journal unavailable", "error", err)
		return
	}
	db, err := journal.Open(ctx, path)
	if err != nil {
		a.logger.Warn(ctx, "journal unavailable", "path", path, "error", err)
		return
	}
	defer db.Close()

	if err := journal.New(db).Record(ctx, e); err != nil {
		a.logger.Warn(ctx, "journal write failed", "path", path, "error", err)
		return
	}
	if err := journal.Prune(ctx, db, journalKeep); err != nil {
		a.logger.Warn(ctx, "journal prune failed", "path", path, "error", err)
	}
}
