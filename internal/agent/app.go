// Package agent wires the guest daemon together: configuration,
// logging, the platform capability layer, the PID-1 zombie reaper and
// the gRPC server.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/virtbridge/vmcourier/internal/agent/config"
	agentgrpc "github.com/virtbridge/vmcourier/internal/agent/grpc"
	"github.com/virtbridge/vmcourier/internal/logging"
	"github.com/virtbridge/vmcourier/internal/netx"
	"github.com/virtbridge/vmcourier/internal/platform"
)

// reaperStopTimeout bounds how long shutdown waits for the reap loop.
const reaperStopTimeout = 3 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	endpoint netx.Endpoint
	reaper   *platform.Reaper
	platform platform.Platform
}

func NewApp(c *config.Config) (*App, error) {
	logger := newLogger(c)

	ep, err := netx.ParseEndpoint(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("agent endpoint: %w", err)
	}

	reaper := platform.NewReaper(logger)

	return &App{
		config:   c,
		logger:   logger,
		endpoint: ep,
		reaper:   reaper,
		platform: platform.NewOS(reaper),
	}, nil
}

// newLogger builds the slog-backed logger. JSON is the default; the
// agent's stdout usually ends up on the VM console or a serial log.
func newLogger(c *config.Config) logging.Logger {
	level := logging.ParseLevel(c.LogLevel)
	if c.LogFormat == "text" {
		return logging.NewText(os.Stdout, level)
	}
	return logging.NewJSON(os.Stdout, level)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until the context is cancelled or a termination signal
// arrives, then unwinds: the gRPC server drains its streams and the
// reaper stops. Run returns only after the listener is closed.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting agent...")

	app.initSignalHandler(cancelFunc)

	app.reaper.Start()
	defer app.reaper.Stop(reaperStopTimeout)

	srv, err := agentgrpc.NewServer(app.endpoint, app.config.FragmentSize, app.platform, app.logger)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}
